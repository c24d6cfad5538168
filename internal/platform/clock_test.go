package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClockNowMillisIsRecentAndIncreasing(t *testing.T) {
	c := SystemClock{}
	first := c.NowMillis()
	time.Sleep(time.Millisecond)
	second := c.NowMillis()
	assert.Greater(t, second, int64(0))
	assert.GreaterOrEqual(t, second, first)
}

func TestSystemClockSleepReturnsAfterDuration(t *testing.T) {
	c := SystemClock{}
	start := time.Now()
	err := c.Sleep(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestSystemClockSleepReturnsOnContextCancellation(t *testing.T) {
	c := SystemClock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
