// Package system provides the wall clock and the pacing sleeper.
package system

import (
	"context"
	"fmt"
	"time"
)

// Clock implements pricing.Clock and pricing.Sleeper using the real time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d, returning early with the context error if ctx ends first.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pacing sleep interrupted: %w", ctx.Err())
	}
}
