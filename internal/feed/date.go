package feed

import (
	"strings"
	"time"
)

// jst is the catalog's implied zone for date-only publication values.
var jst = time.FixedZone("JST", 9*60*60)

var publicationLayouts = []string{
	time.RFC3339,
	"20060102",
	"2006-01-02",
	"2006/01/02",
	"200601",
	"2006-01",
	"2006",
}

// PublishedAt parses PublicationDate. The second result is false when the value is
// empty or in no recognised layout.
func (b BookRecord) PublishedAt() (time.Time, bool) {
	raw := strings.TrimSpace(b.PublicationDate)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range publicationLayouts {
		if t, err := time.ParseInLocation(layout, raw, jst); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
