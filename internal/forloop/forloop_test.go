package forloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlld-lang/mlld/core/value"
)

func items(vals ...string) []Item {
	out := make([]Item, len(vals))
	for i, v := range vals {
		out[i] = Item{Index: i, Value: value.Text(v, value.NewDescriptor())}
	}
	return out
}

func TestSequentialPreservesOrder(t *testing.T) {
	out, err := Run(context.Background(), items("a", "b", "c"), Options{}, func(ctx context.Context, it Item) (value.StructuredValue, error) {
		return value.Text(it.Value.Text+"!", value.NewDescriptor()), nil
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a!", out[0].Output.Text)
	assert.Equal(t, "b!", out[1].Output.Text)
	assert.Equal(t, "c!", out[2].Output.Text)
}

// TestParallelOrderingSurvivesReverseCompletion runs items that complete
// in reverse order (the last item finishes first) and checks the returned
// slice is still in source order, matching spec §4.5's "dispatch order =
// source order; completion order may vary; result order = source order".
func TestParallelOrderingSurvivesReverseCompletion(t *testing.T) {
	n := 5
	vals := make([]string, n)
	for i := range vals {
		vals[i] = string(rune('a' + i))
	}

	// item i finishes only after item i+1 has, so completion runs
	// last-to-first
	finished := make([]chan struct{}, n)
	for i := range finished {
		finished[i] = make(chan struct{})
	}

	var started int32
	out, err := Run(context.Background(), items(vals...), Options{Parallel: true}, func(ctx context.Context, it Item) (value.StructuredValue, error) {
		atomic.AddInt32(&started, 1)
		if it.Index+1 < n {
			<-finished[it.Index+1]
		}
		close(finished[it.Index])
		return value.Text(it.Value.Text, value.NewDescriptor()), nil
	})
	require.NoError(t, err)
	require.Len(t, out, n)
	for i, o := range out {
		assert.Equal(t, vals[i], o.Output.Text)
	}
	assert.EqualValues(t, n, started)
}

func TestParallelFailFastPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), items("a", "b", "c"), Options{Parallel: true}, func(ctx context.Context, it Item) (value.StructuredValue, error) {
		if it.Index == 1 {
			return value.StructuredValue{}, boom
		}
		return value.Text(it.Value.Text, value.NewDescriptor()), nil
	})
	require.Error(t, err)
}

func TestCapBoundsConcurrency(t *testing.T) {
	var current, max int32
	vals := make([]string, 8)
	for i := range vals {
		vals[i] = "x"
	}
	_, err := Run(context.Background(), items(vals...), Options{Parallel: true, Cap: 2}, func(ctx context.Context, it Item) (value.StructuredValue, error) {
		c := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if c <= m || atomic.CompareAndSwapInt32(&max, m, c) {
				break
			}
		}
		atomic.AddInt32(&current, -1)
		return value.Text(it.Value.Text, value.NewDescriptor()), nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(max), 2)
}

func TestCollectSkipsFilteredOutcomes(t *testing.T) {
	outcomes := []Outcome{
		{Output: value.JSONValue(float64(1), value.NewDescriptor())},
		{Skip: true},
		{Output: value.JSONValue(float64(3), value.NewDescriptor())},
	}
	got := Collect(outcomes)
	assert.Equal(t, []interface{}{float64(1), float64(3)}, got)
}
