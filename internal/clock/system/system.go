// Package system provides a real clock implementation.
package system

import "time"

// Clock implements feed.Clock using time.Now, truncated to whole seconds so stored
// timestamps match what RSS dates can express.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at second precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
