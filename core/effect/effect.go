// Package effect defines the append-only effect log that the evaluator
// emits to and the renderer assembles into the final document (spec §3.5,
// §4.8).
package effect

import (
	"sync"

	"github.com/mlld-lang/mlld/core/value"
)

// Type discriminates where an Effect's content is routed.
type Type string

const (
	Doc       Type = "doc"
	Stdout    Type = "stdout"
	Stderr    Type = "stderr"
	Both      Type = "both"
	FileWrite Type = "file_write"
)

// Effect is one entry in the append-only effect log.
type Effect struct {
	Type       Type
	Content    string
	Metadata   map[string]interface{}
	Capability string // e.g. the command line or target path, for diagnostics
	Security   value.SecurityDescriptor
}

// Log is the append-only, thread-safe effect log shared by an evaluation
// tree. The document is the concatenation of Doc and Both effects in
// emission order (spec §3.5).
type Log struct {
	mu      sync.Mutex
	effects []Effect
}

// NewLog returns an empty effect log.
func NewLog() *Log {
	return &Log{}
}

// Append records an effect. Safe for concurrent use by parallel for
// iterations — see spec §4.5 on ordered flush, which callers achieve by
// buffering per-iteration and calling Append in source order, not by
// relying on Append's own ordering.
func (l *Log) Append(e Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.effects = append(l.effects, e)
}

// All returns a snapshot copy of the effect log.
func (l *Log) All() []Effect {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Effect, len(l.effects))
	copy(out, l.effects)
	return out
}

// Document concatenates Doc and Both effect contents in emission order.
func (l *Log) Document() string {
	var sb []byte
	for _, e := range l.All() {
		if e.Type == Doc || e.Type == Both {
			sb = append(sb, e.Content...)
		}
	}
	return string(sb)
}
