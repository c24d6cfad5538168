package sdk

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerRecordsCBOREncodedEntries(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTracer(&buf)
	require.NoError(t, err)

	require.NoError(t, tr.Record(Event{Type: EventDebugDirective, Timestamp: 1}, map[string]interface{}{"kind": "show"}))
	require.NoError(t, tr.Record(Event{Type: EventDebugGuard, Timestamp: 2}, nil))

	dec := cbor.NewDecoder(&buf)
	var first TraceRecord
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, EventDebugDirective, first.Event.Type)
	assert.Equal(t, "show", first.Context["kind"])

	var second TraceRecord
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, EventDebugGuard, second.Event.Type)
}

func TestNilWriterTracerIsNoOp(t *testing.T) {
	tr, err := NewTracer(nil)
	require.NoError(t, err)
	assert.NoError(t, tr.Record(Event{Type: EventEffect}, nil))
}

func TestEnvGatedTracerDisabledWithoutMLLDDebug(t *testing.T) {
	t.Setenv("MLLD_DEBUG", "")
	var buf bytes.Buffer
	tr, err := NewEnvGatedTracer(&buf)
	require.NoError(t, err)
	require.NoError(t, tr.Record(Event{Type: EventEffect}, nil))
	assert.Equal(t, 0, buf.Len())
}

func TestEnvGatedTracerEnabledWithMLLDDebug(t *testing.T) {
	t.Setenv("MLLD_DEBUG", "1")
	var buf bytes.Buffer
	tr, err := NewEnvGatedTracer(&buf)
	require.NoError(t, err)
	require.NoError(t, tr.Record(Event{Type: EventEffect}, nil))
	assert.Greater(t, buf.Len(), 0)
}

func TestTracerSinkAttachesToEmitter(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTracer(&buf)
	require.NoError(t, err)

	e := NewEmitter(tr.Sink())
	e.ExecutionComplete(0)

	assert.Greater(t, buf.Len(), 0)
}
