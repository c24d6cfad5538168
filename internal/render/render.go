// Package render implements the output renderer (spec §4.8): it routes
// stdout/stderr effects to the runtime's stdio, and finalizes the
// doc/both effect stream into the document the CLI prints or writes.
package render

import (
	"bytes"
	"io"
	"regexp"

	"github.com/mlld-lang/mlld/core/effect"
)

// Sinks are where stdout/stderr-typed effects are routed as they are
// emitted (spec §4.8: "Routes stdout/stderr to the runtime's stdio").
type Sinks struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Options controls document finalization.
type Options struct {
	// CollapseBlankLines normalizes 3+ consecutive newlines down to one
	// blank line (spec §4.8: "normalizes consecutive blank lines if
	// configured").
	CollapseBlankLines bool
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// Renderer drains an effect log to stdio sinks and finalizes the
// document portion.
type Renderer struct {
	Sinks Sinks
	Opts  Options
}

// Drain routes every stdout/stderr/both effect appended since the last
// call to their sinks. Doc-only effects are not routed here; they only
// ever appear in the final document (Finalize).
func (r *Renderer) Drain(effects []effect.Effect) {
	for _, e := range effects {
		switch e.Type {
		case effect.Stdout:
			r.write(r.Sinks.Stdout, e.Content)
		case effect.Stderr:
			r.write(r.Sinks.Stderr, e.Content)
		case effect.Both:
			r.write(r.Sinks.Stdout, e.Content)
		}
	}
}

func (r *Renderer) write(w io.Writer, s string) {
	if w == nil || s == "" {
		return
	}
	_, _ = io.WriteString(w, s)
}

// Finalize joins the doc/both effect contents in emission order and
// applies the configured normalizer (spec §4.8: "joining effect contents,
// optionally applying a Markdown normalizer").
func (r *Renderer) Finalize(effects []effect.Effect) string {
	var buf bytes.Buffer
	for _, e := range effects {
		if e.Type == effect.Doc || e.Type == effect.Both {
			buf.WriteString(e.Content)
		}
	}
	doc := buf.String()
	if r.Opts.CollapseBlankLines {
		doc = blankRunRe.ReplaceAllString(doc, "\n\n")
	}
	return doc
}
