// Package interp implements the directive evaluator (spec §4.2): the
// `evaluate(node, env) -> Result<StructuredValue>` dispatch that wires
// together internal/env, internal/tmpl, internal/pipeline,
// internal/forloop, internal/guard, and internal/exec into a single
// document evaluation.
package interp

import (
	"context"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/exec"
)

// Interpreter holds the collaborators the evaluator needs beyond the
// Environment tree (the executor and, indirectly through it, the process
// spawner/JS runtime/prose adapter ports).
type Interpreter struct {
	Exec *exec.Executor
	// Parser re-enters the (external, out-of-scope-for-this-module per
	// spec §6.1) source parser for `/import`'s raw-source-text case. It is
	// a caller-supplied callback for the same reason internal/tmpl's
	// Resolver and internal/guard's Evaluator are: keeping this package
	// decoupled from a concrete parser implementation it does not own.
	Parser func(source, file string) (*ast.Document, error)
}

// New builds an Interpreter around an already-configured executor.
func New(executor *exec.Executor) *Interpreter {
	return &Interpreter{Exec: executor}
}

// EvaluateDocument walks a parsed document top to bottom against root,
// emitting effects to root.Shared().Effects as directives run (spec §4.8:
// "the document is the concatenation of doc and both effects in emission
// order").
func (ip *Interpreter) EvaluateDocument(ctx context.Context, doc *ast.Document, root *env.Environment) error {
	return ip.evalBlock(ctx, doc.Body, root)
}

// evalBlock evaluates a sequence of body nodes for their side effects,
// in source order. Reused for the top-level document body, `/if` then/else
// arms, and `/for` directive bodies — spec §3.4 models a block only as "a
// sequence of body nodes", so there is no separate Block node type to
// dispatch on.
func (ip *Interpreter) evalBlock(ctx context.Context, body []ast.Node, e *env.Environment) error {
	for _, n := range body {
		if err := ip.evalNode(ctx, n, e); err != nil {
			return err
		}
	}
	return nil
}

func (ip *Interpreter) evalNode(ctx context.Context, n ast.Node, e *env.Environment) error {
	switch node := n.(type) {
	case *ast.Text:
		e.EmitEffect(effect.Effect{Type: effect.Doc, Content: node.Value})
		return nil
	case *ast.CodeFence:
		e.EmitEffect(effect.Effect{Type: effect.Doc, Content: "```" + node.Lang + "\n" + node.Body + "```"})
		return nil
	case *ast.Comment:
		return nil
	case *ast.Frontmatter:
		return nil
	case *ast.Document:
		// Synthetic grouping container used by the directive evaluator for
		// `/if`/`/for` bodies (see evalBlock's doc comment); walk its Body.
		return ip.evalBlock(ctx, node.Body, e)
	case *ast.Directive:
		return ip.evalDirective(ctx, node, e)
	case *ast.GuardNode:
		e.RegisterGuard(env.GuardHook{
			Name:      node.Name,
			Phase:     node.Phase,
			Target:    node.Target,
			Body:      node.Body,
			DefinedAt: node.Pos,
		})
		return nil
	case *ast.PolicyNode:
		cfg, err := parsePolicyConfig(ctx, ip, node.Config, e)
		if err != nil {
			return err
		}
		e.PushPolicy(env.PolicyFrame{Name: node.Name, Config: cfg})
		return nil
	default:
		return &diagnostic.TypeMismatch{Expected: "document body node", Got: nodeTypeName(n), Loc: n.Position()}
	}
}

func nodeTypeName(n ast.Node) string {
	switch n.(type) {
	case ast.Expression:
		return "expression"
	default:
		return "unknown"
	}
}
