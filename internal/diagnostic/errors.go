// Package diagnostic implements mlld's exhaustive error-kind taxonomy
// (spec §7) as typed errors, plus source-location-aware rendering.
package diagnostic

import (
	"fmt"

	"github.com/mlld-lang/mlld/core/ast"
)

// ParseError is surfaced from the (external) parser; always fatal.
type ParseError struct {
	Loc     ast.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Loc, e.Message)
}

// VariableNotFound is a scope error; fatal unless caught by a `when` branch.
type VariableNotFound struct {
	Name       string
	Loc        ast.Position
	Suggestion string // populated by diagnostic.Suggest, empty if none found
}

func (e *VariableNotFound) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: variable @%s not found (did you mean @%s?)", e.Loc, e.Name, e.Suggestion)
	}
	return fmt.Sprintf("%s: variable @%s not found", e.Loc, e.Name)
}

// DuplicateVariable is raised when a `var` re-binds an existing module-scope name.
type DuplicateVariable struct {
	Name string
	Loc  ast.Position
}

func (e *DuplicateVariable) Error() string {
	return fmt.Sprintf("%s: @%s is already declared in this module scope", e.Loc, e.Name)
}

// ReservedName is raised when a directive attempts to (re)define a builtin.
type ReservedName struct {
	Name string
	Loc  ast.Position
}

func (e *ReservedName) Error() string {
	return fmt.Sprintf("%s: @%s is a reserved name and cannot be assigned", e.Loc, e.Name)
}

// VarInBlockScope is the resolved Open Question #1 (SPEC_FULL.md): `/var`
// used outside module scope is always an error, in every mode.
type VarInBlockScope struct {
	Name string
	Loc  ast.Position
}

func (e *VarInBlockScope) Error() string {
	return fmt.Sprintf("%s: /var @%s is only valid at module scope; use /let inside a block", e.Loc, e.Name)
}

// TypeMismatch covers e.g. iterating over a non-iterable.
type TypeMismatch struct {
	Expected string
	Got      string
	Loc      ast.Position
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Loc, e.Expected, e.Got)
}

// PathValidationCode enumerates PathValidationError's machine-readable codes.
type PathValidationCode string

const (
	PathEmpty          PathValidationCode = "EMPTY"
	PathNullByte       PathValidationCode = "NULL_BYTE"
	PathExpectedFS     PathValidationCode = "EXPECTED_FS"
	PathExpectedURL    PathValidationCode = "EXPECTED_URL"
	PathOutsideRoot    PathValidationCode = "OUTSIDE_ROOT"
	PathFileNotFound   PathValidationCode = "FILE_NOT_FOUND"
	PathNotAFile       PathValidationCode = "NOT_A_FILE"
	PathNotADirectory  PathValidationCode = "NOT_A_DIRECTORY"
)

type PathValidationError struct {
	Code PathValidationCode
	Path string
	Loc  ast.Position
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("%s: path %q invalid: %s", e.Loc, e.Path, e.Code)
}

// ExecutionError is a non-zero exit from a shell/code body.
type ExecutionError struct {
	Exit       int
	StderrTail string // last 4KiB of stderr
	Loc        ast.Position
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: command exited %d: %s", e.Loc, e.Exit, e.StderrTail)
}

// PolicyDenied surfaces with a machine-readable rule identifier (spec §4.6/§7).
type PolicyDenied struct {
	Rule string
	Op   string
	Loc  ast.Position
}

func (e *PolicyDenied) Error() string {
	return fmt.Sprintf("%s: policy denied rule %q for operation %q", e.Loc, e.Rule, e.Op)
}

// GuardDecisionKind discriminates GuardDecision outcomes.
type GuardDecisionKind string

const (
	DecisionAllow GuardDecisionKind = "allow"
	DecisionDeny  GuardDecisionKind = "deny"
	DecisionRetry GuardDecisionKind = "retry"
)

// GuardDecision is a guard outcome; Deny is fatal, Retry is consumed only by
// the pipeline driver (spec §4.6/§7) — it must never escape to the caller.
type GuardDecision struct {
	Decision  GuardDecisionKind
	Message   string
	RetryFrom *int // nil => local retry (current stage)
	Loc       ast.Position
}

func (e *GuardDecision) Error() string {
	return fmt.Sprintf("%s: guard %s: %s", e.Loc, e.Decision, e.Message)
}

// PipelineAborted is raised when a pipeline exceeds its retry budget or is
// explicitly aborted.
type PipelineAborted struct {
	Reason string
	Loc    ast.Position
}

func (e *PipelineAborted) Error() string {
	return fmt.Sprintf("%s: pipeline aborted: %s", e.Loc, e.Reason)
}

// ResolverError wraps a module/URL fetch failure.
type ResolverError struct {
	Ref string
	Err error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("failed to resolve %q: %v", e.Ref, e.Err)
}

func (e *ResolverError) Unwrap() error { return e.Err }

// ReservedNames is the builtin identifier set that no directive may define
// (spec §4.2 edge-case policy).
var ReservedNames = map[string]bool{
	"exists": true, "upper": true, "debug": true, "base": true, "root": true,
	"now": true, "json": true, "input": true, "ctx": true, "mx": true,
}
