package updater

// State is the orchestrator's position in the update cycle.
type State int32

// Cycle states, in the order a cycle visits them.
const (
	StateIdle State = iota
	StateFetchingCatalog
	StateProcessingFeeds
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingCatalog:
		return "fetching_catalog"
	case StateProcessingFeeds:
		return "processing_feeds"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
