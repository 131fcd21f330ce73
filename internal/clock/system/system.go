// Package system provides the real clock used outside of tests.
package system

import "time"

// Clock implements crawler.Clock with time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
