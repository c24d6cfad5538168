package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/env"
)

func TestEvalBindingLetSetsBlockScopedVariable(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := bindingDirective(ast.DirectiveLet, "name", strLit("ada"))
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	v, err := e.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", v.Value.Text)
	assert.Equal(t, value.SourceLet, v.SourceKind)
}

func TestEvalBindingVarOutsideModuleScopeFails(t *testing.T) {
	ip := New(nil)
	root := newTestEnv(nil)
	child := root.CreateChild(env.ChildBlock)

	d := bindingDirective(ast.DirectiveVar, "x", strLit("v"))
	err := ip.evalDirective(context.Background(), d, child)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x")
}

func TestEvalBindingRejectsReservedName(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := bindingDirective(ast.DirectiveLet, "ctx", strLit("nope"))
	err := ip.evalDirective(context.Background(), d, e)
	require.Error(t, err)
}

func TestEvalIfBranchBindingDoesNotLeakToParent(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	thenBlock := &ast.Document{Body: []ast.Node{
		bindingDirective(ast.DirectiveLet, "seen", strLit("then")),
	}}
	elseBlock := &ast.Document{Body: []ast.Node{
		bindingDirective(ast.DirectiveLet, "seen", strLit("else")),
	}}

	d := &ast.Directive{
		Kind: ast.DirectiveIf,
		Values: map[string]ast.Node{
			"cond": &ast.BooleanLiteral{Value: true},
			"then": thenBlock,
			"else": elseBlock,
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	// `then`/`else` bodies run in a child scope; the binding must not leak
	// up to the parent (spec §4.1 invariant).
	_, err := e.Get("seen")
	assert.Error(t, err)
}

func TestEvalShowEmitsDocEffect(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := &ast.Directive{
		Kind: ast.DirectiveShow,
		Values: map[string]ast.Node{
			"expr": strLit("hello world"),
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	effects := e.Shared().Effects.All()
	require.Len(t, effects, 1)
	assert.Equal(t, effect.Doc, effects[0].Type)
	assert.Equal(t, "hello world", effects[0].Content)
}

func TestEvalOutputWritesFileAndAppend(t *testing.T) {
	ip := New(nil)
	fs := newFakeFS()
	e := newTestEnv(fs)

	write := &ast.Directive{
		Kind: ast.DirectiveOutput,
		Values: map[string]ast.Node{
			"expr": strLit("line1\n"),
			"to":   strLit("/out.txt"),
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), write, e))
	assert.Equal(t, "line1\n", fs.files["/out.txt"])

	appendD := &ast.Directive{
		Kind:    ast.DirectiveOutput,
		Subtype: "append",
		Values: map[string]ast.Node{
			"expr": strLit("line2\n"),
			"to":   strLit("/out.txt"),
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), appendD, e))
	assert.Equal(t, "line1\nline2\n", fs.files["/out.txt"])
}

func TestEvalExportThenImportBindsSelectedNames(t *testing.T) {
	parser := func(source, file string) (*ast.Document, error) {
		return &ast.Document{Body: []ast.Node{
			bindingDirective(ast.DirectiveLet, "a", strLit("A")),
			bindingDirective(ast.DirectiveLet, "b", strLit("B")),
			&ast.Directive{
				Kind: ast.DirectiveExport,
				Values: map[string]ast.Node{
					"names": &ast.ArrayLiteral{Elements: []ast.Expression{strLit("a"), strLit("b")}},
				},
			},
		}}, nil
	}
	ip := &Interpreter{Parser: parser}

	e := newTestEnv(nil)
	resolver := &fakeResolver{ref: "mod", raw: "unused"}
	e.Shared().Resolver = resolver

	imp := &ast.Directive{
		Kind: ast.DirectiveImport,
		Values: map[string]ast.Node{
			"source": strLit("mod"),
			"names":  &ast.ArrayLiteral{Elements: []ast.Expression{strLit("a")}},
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), imp, e))

	v, err := e.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "A", v.Value.Text)
	assert.Equal(t, value.SourceImport, v.SourceKind)

	_, err = e.Get("b")
	assert.Error(t, err, "names filter should exclude b")
}

// fakeResolver always resolves ref to itself and returns raw source text
// (never pre-evaluated bindings), exercising evalImport's parser path.
type fakeResolver struct {
	ref string
	raw string
}

func (f *fakeResolver) Canonicalize(ref string) (string, error) { return ref, nil }
func (f *fakeResolver) Load(ctx context.Context, ref string) (string, map[string]interface{}, error) {
	return f.raw, nil, nil
}
