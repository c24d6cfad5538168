// Package guard implements guard hook dispatch and the policy stack engine
// (spec §4.6): before/after/for hooks evaluated in registration order with
// first-non-allow short-circuiting, and a cactus-stack policy engine of
// capability/label/auth/keychain rules that `with {guards:false}` can never
// bypass.
package guard

import (
	"fmt"
	"path"
	"strings"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
)

// Target describes the operation being guarded/policy-checked: its op
// kind (for `op:show`/`op:run`/`op:exe`/`op:output` hook targets and
// capability globs like "run:curl") and the labels attached to the
// value(s) in play (for `label:<L>` hook targets and `labels.<L>` rules).
type Target struct {
	Op     string // "show" | "run" | "exe" | "output"
	Name   string // command/exe name, for capability globs ("run:curl")
	Labels map[string]bool
}

// Evaluator runs a guard's `when`-bodied condition and returns its
// decision. Supplied by the evaluator package (guard stays decoupled from
// internal/interp to avoid an import cycle, the same discipline as
// internal/tmpl's Resolver).
type Evaluator func(body *ast.WhenExpression, frame env.GuardFrame) (diagnostic.GuardDecision, error)

func hookMatches(hook env.GuardHook, t Target) bool {
	switch {
	case strings.HasPrefix(hook.Target, "op:"):
		return strings.TrimPrefix(hook.Target, "op:") == t.Op
	case strings.HasPrefix(hook.Target, "label:"):
		label := strings.TrimPrefix(hook.Target, "label:")
		return t.Labels[label]
	default:
		return false
	}
}

// Evaluate dispatches every hook registered for `phase` whose target
// matches t, in registration order, and returns the first decision that
// is not Allow. A bare `retry` decision (GuardDecision.RetryFrom meaningful
// only inside a pipeline stage) is rejected as an error when
// insidePipelineStage is false (spec §4.6: "retry is only legal inside a
// pipeline stage context").
func Evaluate(hooks []env.GuardHook, phase ast.GuardPhase, t Target, frame env.GuardFrame, insidePipelineStage bool, eval Evaluator) (diagnostic.GuardDecision, error) {
	for _, hook := range hooks {
		if hook.Phase != phase || !hookMatches(hook, t) {
			continue
		}
		decision, err := eval(hook.Body, frame)
		if err != nil {
			return diagnostic.GuardDecision{}, err
		}
		if decision.Decision == diagnostic.DecisionAllow {
			continue
		}
		if decision.Decision == diagnostic.DecisionRetry && !insidePipelineStage {
			return diagnostic.GuardDecision{}, &diagnostic.GuardDecision{
				Decision: diagnostic.DecisionRetry,
				Message:  "retry is only legal inside a pipeline stage",
				Loc:      hook.DefinedAt,
			}
		}
		return decision, nil
	}
	return diagnostic.GuardDecision{Decision: diagnostic.DecisionAllow}, nil
}

// CheckPolicy enforces the active policy stack's capability/label/danger
// rules against t. Unlike user-registered guard hooks, this is never
// bypassed by `with {guards:false}` (spec §4.6). Frames are checked
// innermost first (PolicyStack's own ordering), and the first rule that
// explicitly denies wins; an explicit allow does not short-circuit a
// stricter outer deny (deny-wins composition: a single failing scope
// fails the whole lookup regardless of inner scopes' allowances).
//
// danger is the caller's explicit opt-in for this one operation into a
// policy's danger-listed capabilities (e.g. @keychain) — a capability
// present in a frame's Danger set is denied unless danger is true. No
// call-site syntax grants that opt-in yet, so every caller currently
// passes false and every danger-listed capability is denied outright;
// wiring an opt-in (e.g. operation-level `with{}` metadata) only needs
// to set danger to true at the call site, this check already enforces
// the deny-by-default half of the rule.
func CheckPolicy(stack []env.PolicyFrame, t Target, danger bool) error {
	capability := t.Op
	if t.Name != "" {
		capability = t.Op + ":" + t.Name
	}

	for _, frame := range stack {
		cfg := frame.Config

		if matchAny(cfg.CapabilitiesDeny, capability) {
			return &diagnostic.PolicyDenied{Rule: frame.Name + ".capabilities.deny", Op: capability}
		}
		if len(cfg.CapabilitiesAllow) > 0 && !matchAny(cfg.CapabilitiesAllow, capability) {
			return &diagnostic.PolicyDenied{Rule: frame.Name + ".capabilities.allow", Op: capability}
		}

		for label := range t.Labels {
			rule, ok := cfg.Labels[label]
			if !ok {
				continue
			}
			if matchAny(rule.Deny, capability) {
				return &diagnostic.PolicyDenied{Rule: fmt.Sprintf("%s.labels.%s.deny", frame.Name, label), Op: capability}
			}
			if len(rule.Allow) > 0 && !matchAny(rule.Allow, capability) {
				return &diagnostic.PolicyDenied{Rule: fmt.Sprintf("%s.labels.%s.allow", frame.Name, label), Op: capability}
			}
		}

		if cfg.Danger[capability] && !danger {
			return &diagnostic.PolicyDenied{Rule: frame.Name + ".danger", Op: capability}
		}
	}
	return nil
}

// CheckKeychain enforces a policy stack's keychain allow/deny globs
// against a requested service/account key (spec §4.6 `policy.auth`
// bindings with `from: "keychain:..."`).
func CheckKeychain(stack []env.PolicyFrame, key string) error {
	for _, frame := range stack {
		cfg := frame.Config
		if matchAny(cfg.KeychainDeny, key) {
			return &diagnostic.PolicyDenied{Rule: frame.Name + ".keychain.deny", Op: key}
		}
		if len(cfg.KeychainAllow) > 0 && !matchAny(cfg.KeychainAllow, key) {
			return &diagnostic.PolicyDenied{Rule: frame.Name + ".keychain.allow", Op: key}
		}
	}
	return nil
}

// matchAny reports whether s matches any of the shell-style globs in
// patterns. Plain stdlib path.Match: no glob library appears anywhere in
// the example pack's dependency set, so there is nothing ecosystem-grade
// to prefer over it for this narrow, already-fully-specified need.
func matchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, s); ok {
			return true
		}
	}
	return false
}
