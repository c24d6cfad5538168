package platform

import (
	"context"
	"time"

	"github.com/mlld-lang/mlld/internal/ports"
)

// SystemClock implements ports.Clock over the real wall clock.
type SystemClock struct{}

var _ ports.Clock = SystemClock{}

// NowMillis returns the current Unix time in milliseconds.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
