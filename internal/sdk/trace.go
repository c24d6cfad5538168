package sdk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// TraceRecord is one entry in the CBOR-encoded debug trace log, gated on
// MLLD_DEBUG (spec §6.4, §7 "Dual transformation mode ... keep a
// secondary debug_trace event log when a debug flag is set").
type TraceRecord struct {
	Seq     int64                  `cbor:"seq"`
	Event   Event                  `cbor:"event"`
	Context map[string]interface{} `cbor:"context,omitempty"`
}

// Tracer appends TraceRecords to a CBOR stream using a deterministic
// encoding mode, mirroring the canonical-CBOR idiom used elsewhere in
// this codebase for byte-stable output. Safe for concurrent use.
type Tracer struct {
	mu      sync.Mutex
	w       io.Writer
	enc     cbor.EncMode
	seq     int64
	enabled bool
}

// NewTracer wraps w as a CBOR debug-trace sink. If w is nil, the tracer
// is a no-op (used when MLLD_DEBUG is unset).
func NewTracer(w io.Writer) (*Tracer, error) {
	if w == nil {
		return &Tracer{enabled: false}, nil
	}
	opts, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("sdk: building CBOR encoder: %w", err)
	}
	return &Tracer{w: w, enc: opts, enabled: true}, nil
}

// NewEnvGatedTracer builds a Tracer that writes to w only when the
// MLLD_DEBUG environment variable is set (spec §6.4), and is a no-op
// otherwise.
func NewEnvGatedTracer(w io.Writer) (*Tracer, error) {
	if os.Getenv("MLLD_DEBUG") == "" {
		return NewTracer(nil)
	}
	return NewTracer(w)
}

// Record appends one trace entry. No-op when the tracer is disabled.
func (t *Tracer) Record(ev Event, context map[string]interface{}) error {
	if t == nil || !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	rec := TraceRecord{Seq: t.seq, Event: ev, Context: context}
	data, err := t.enc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sdk: encoding trace record: %w", err)
	}
	_, err = t.w.Write(data)
	return err
}

// Sink adapts the Tracer to sdk.Sink, so it can be attached directly to
// an Emitter alongside an SDK's own stream sink.
func (t *Tracer) Sink() Sink {
	return SinkFunc(func(ev Event) {
		_ = t.Record(ev, nil)
	})
}
