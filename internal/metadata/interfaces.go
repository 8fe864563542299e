package metadata

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidURL is returned when a URL is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces resolution IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Resolver resolves display metadata for a URL. Resolve never fails; an empty
// WebsiteData means nothing could be learned.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) WebsiteData
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }
