package env

import (
	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
)

// PipelineFrame is the read-only view backing @ctx inside a pipeline stage
// body (spec §4.4, §9 design note: "@ctx, @mx... scoped read-only views
// over the current environment frame, not real variables").
type PipelineFrame struct {
	Try     int                      // @ctx.try, 1-indexed
	Stage   int                      // @ctx.stage, 1-indexed
	Total   int                      // @ctx.total
	Hint    *string                  // @ctx.hint, nil if none
	Outputs []value.StructuredValue  // @ctx.outputs[0..], index 0 is base input
}

// Previous returns @ctx.previous, the alias for @ctx.outputs[stage-1].
func (f PipelineFrame) Previous() (value.StructuredValue, bool) {
	idx := f.Stage - 1
	if idx < 0 || idx >= len(f.Outputs) {
		return value.StructuredValue{}, false
	}
	return f.Outputs[idx], true
}

// GuardFrame is the per-hook context pushed by WithGuardFrame while a guard
// body runs (spec §4.6). builtinRef does not expose it: @mx inside a guard
// body resolves only an enclosing loop frame, or null.
type GuardFrame struct {
	OpType    string // "show" | "run" | "exe" | "output"
	OpName    string
	OpLabels  []string
	Taint     map[value.TaintLevel]bool
	Labels    map[string]bool
	Sources   []string
	Input     value.StructuredValue
	GuardTry  int
	Reason    string
}

// LoopFrame is the read-only view backing `@x.mx.loop` inside a for body
// (spec §4.5).
type LoopFrame struct {
	Index     int // 0-based position
	Iteration int // 1-based
	Key       *string
	Total     int
}

// GuardHook is a registered /guard hook (spec §4.2, §4.6).
type GuardHook struct {
	Name      string
	Phase     ast.GuardPhase
	Target    string
	Body      *ast.WhenExpression
	DefinedAt ast.Position
}

// LabelRule is a `labels.<L>.allow`/`labels.<L>.deny` policy entry.
type LabelRule struct {
	Allow []string
	Deny  []string
}

// AuthBinding is a `policy.auth.<alias>` entry.
type AuthBinding struct {
	From  string // "keychain:path" | "env:VAR"
	As    string
	Label string // optional label the policy wants stamped on the injected value
}

// PolicyConfig is the parsed body of a `/policy @p = union(config)` (spec §4.6).
type PolicyConfig struct {
	CapabilitiesAllow []string
	CapabilitiesDeny  []string
	Labels            map[string]LabelRule
	Auth              map[string]AuthBinding
	KeychainAllow     []string
	KeychainDeny      []string
	Danger            map[string]bool
}

// PolicyFrame is one activated policy stack entry.
type PolicyFrame struct {
	Name   string
	Config PolicyConfig
}

// WithPipelineContext pushes a pipeline frame, runs f, and guarantees the
// pop on any exit (spec §4.1 with_pipeline_context).
func (e *Environment) WithPipelineContext(frame PipelineFrame, f func(child *Environment) error) error {
	child := e.CreateChild(ChildPipelineStage)
	child.pipelineFrames = append(append([]PipelineFrame(nil), e.pipelineFrames...), frame)
	return f(child)
}

// CurrentPipelineFrame returns the innermost active pipeline frame, if any.
func (e *Environment) CurrentPipelineFrame() (PipelineFrame, bool) {
	for env := e; env != nil; env = env.parent {
		if n := len(env.pipelineFrames); n > 0 {
			return env.pipelineFrames[n-1], true
		}
	}
	return PipelineFrame{}, false
}

// WithGuardFrame pushes a guard frame for the duration of f.
func (e *Environment) WithGuardFrame(frame GuardFrame, f func(child *Environment) error) error {
	child := e.CreateChild(ChildGuard)
	child.guardFrames = append(append([]GuardFrame(nil), e.guardFrames...), frame)
	return f(child)
}

// CurrentGuardFrame returns the innermost active guard frame, if any.
func (e *Environment) CurrentGuardFrame() (GuardFrame, bool) {
	for env := e; env != nil; env = env.parent {
		if n := len(env.guardFrames); n > 0 {
			return env.guardFrames[n-1], true
		}
	}
	return GuardFrame{}, false
}

// WithLoopFrame runs f in a new ChildLoopIteration child scope carrying
// frame; that child is where the per-iteration binding is installed.
func (e *Environment) WithLoopFrame(frame LoopFrame, f func(child *Environment) error) error {
	child := e.CreateChild(ChildLoopIteration)
	child.loopFrames = append(append([]LoopFrame(nil), e.loopFrames...), frame)
	return f(child)
}

// CurrentLoopFrame returns the innermost active loop frame, if any.
func (e *Environment) CurrentLoopFrame() (LoopFrame, bool) {
	for env := e; env != nil; env = env.parent {
		if n := len(env.loopFrames); n > 0 {
			return env.loopFrames[n-1], true
		}
	}
	return LoopFrame{}, false
}

// PushPolicy activates a policy frame visible to this scope and its
// descendants, using a cactus-stack scope-trie pattern generalized
// from secret scoping to policy scoping.
func (e *Environment) PushPolicy(frame PolicyFrame) {
	e.policyStack = append(e.policyStack, frame)
}

// PolicyStack returns all active policy frames, innermost (most recently
// pushed, closest scope) first.
func (e *Environment) PolicyStack() []PolicyFrame {
	var out []PolicyFrame
	for env := e; env != nil; env = env.parent {
		for i := len(env.policyStack) - 1; i >= 0; i-- {
			out = append(out, env.policyStack[i])
		}
	}
	return out
}

// RegisterGuard adds a guard hook visible to this scope and its descendants.
func (e *Environment) RegisterGuard(hook GuardHook) {
	e.guards = append(e.guards, hook)
}

// Guards returns all registered guard hooks in registration order (outermost
// scope's hooks first, then this scope's), per spec §4.6 "evaluated in
// registration order".
func (e *Environment) Guards() []GuardHook {
	var chain []*Environment
	for env := e; env != nil; env = env.parent {
		chain = append(chain, env)
	}
	var out []GuardHook
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].guards...)
	}
	return out
}
