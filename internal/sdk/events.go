// Package sdk implements the event stream an embedding SDK observes (spec
// §6.5): `effect`, `command:start`, `command:complete`, `stream:chunk`,
// `stream:progress`, `execution:complete`, and the `debug:directive:*` /
// `debug:guard:*` debug variants. Every event carries a monotonic
// timestamp and, where applicable, a security descriptor.
package sdk

import (
	"sync/atomic"

	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/core/value"
)

// EventType names one of the SDK's wire event kinds.
type EventType string

const (
	EventEffect           EventType = "effect"
	EventCommandStart      EventType = "command:start"
	EventCommandComplete   EventType = "command:complete"
	EventStreamChunk       EventType = "stream:chunk"
	EventStreamProgress    EventType = "stream:progress"
	EventExecutionComplete EventType = "execution:complete"
	EventDebugDirective    EventType = "debug:directive"
	EventDebugGuard        EventType = "debug:guard"
)

// Event is one entry on the SDK event stream. Timestamp is a monotonic
// tick assigned by an Emitter, not a wall-clock value — spec §6.5 only
// requires events be orderable, not calendar-stamped.
type Event struct {
	Type      EventType                `json:"type"`
	Timestamp int64                    `json:"timestamp"`
	Security  *value.SecurityDescriptor `json:"security,omitempty"`
	Payload   map[string]interface{}   `json:"payload,omitempty"`
}

// Sink receives events as they're emitted. An SDK embedding the
// interpreter implements this to stream events to its own transport.
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

// Handle implements Sink.
func (f SinkFunc) Handle(e Event) { f(e) }

// Emitter assigns monotonically increasing timestamps and fans events out
// to zero or more sinks. Safe for concurrent use by parallel for
// iterations (spec §4.5's "serializes them before emission").
type Emitter struct {
	tick  int64
	sinks []Sink
}

// NewEmitter builds an Emitter with the given sinks attached.
func NewEmitter(sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks}
}

// Attach adds a sink to receive future events.
func (e *Emitter) Attach(s Sink) {
	e.sinks = append(e.sinks, s)
}

func (e *Emitter) next() int64 {
	return atomic.AddInt64(&e.tick, 1)
}

func (e *Emitter) emit(typ EventType, security *value.SecurityDescriptor, payload map[string]interface{}) {
	if e == nil || len(e.sinks) == 0 {
		return
	}
	ev := Event{Type: typ, Timestamp: e.next(), Security: security, Payload: payload}
	for _, s := range e.sinks {
		s.Handle(ev)
	}
}

// EmitEffect forwards an appended effect.Effect to the stream.
func (e *Emitter) EmitEffect(eff effect.Effect) {
	sec := eff.Security
	e.emit(EventEffect, &sec, map[string]interface{}{
		"effectType": string(eff.Type),
		"content":    eff.Content,
		"capability": eff.Capability,
	})
}

// CommandStart signals a command/code body about to run (spec §4.7).
func (e *Emitter) CommandStart(command string, security value.SecurityDescriptor) {
	e.emit(EventCommandStart, &security, map[string]interface{}{"command": command})
}

// CommandComplete signals a command/code body finishing.
func (e *Emitter) CommandComplete(command string, exitCode int, security value.SecurityDescriptor) {
	e.emit(EventCommandComplete, &security, map[string]interface{}{
		"command":  command,
		"exitCode": exitCode,
	})
}

// StreamChunk reports one stdout chunk of a `with { stream: true }` run
// (spec §4.7, §6.5).
func (e *Emitter) StreamChunk(chunk string, security value.SecurityDescriptor) {
	e.emit(EventStreamChunk, &security, map[string]interface{}{"chunk": chunk})
}

// StreamProgress reports coarse-grained progress (e.g. bytes read so far)
// for a long-running streamed command.
func (e *Emitter) StreamProgress(bytesRead int64, security value.SecurityDescriptor) {
	e.emit(EventStreamProgress, &security, map[string]interface{}{"bytesRead": bytesRead})
}

// ExecutionComplete signals the whole document has finished evaluating.
func (e *Emitter) ExecutionComplete(exitCode int) {
	e.emit(EventExecutionComplete, nil, map[string]interface{}{"exitCode": exitCode})
}

// DebugDirective reports one directive's dispatch, gated by callers on
// MLLD_DEBUG (spec §6.4).
func (e *Emitter) DebugDirective(kind string, detail map[string]interface{}) {
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detail["kind"] = kind
	e.emit(EventDebugDirective, nil, detail)
}

// DebugGuard reports one guard/policy decision, gated by callers on
// MLLD_DEBUG.
func (e *Emitter) DebugGuard(phase string, decision string, detail map[string]interface{}) {
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detail["phase"] = phase
	detail["decision"] = decision
	e.emit(EventDebugGuard, nil, detail)
}
