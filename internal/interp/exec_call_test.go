package interp

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/exec"
	"github.com/mlld-lang/mlld/internal/ports"
)

// fakeSpawner replays a scripted exit/stdout without touching a real shell.
type fakeSpawner struct {
	stdout  string
	lastCmd string
}

func (f *fakeSpawner) Spawn(ctx context.Context, cmd string, args []string, env map[string]string, stdin io.Reader, cwd string) (*ports.ChildHandle, error) {
	f.lastCmd = cmd
	return &ports.ChildHandle{
		Stdout: io.NopCloser(strings.NewReader(f.stdout)),
		Stderr: io.NopCloser(strings.NewReader("")),
		Wait:   func(ctx context.Context) (int, error) { return 0, nil },
		Kill:   func(sig ports.Signal) error { return nil },
	}, nil
}

type fakeClock struct{}

func (fakeClock) NowMillis() int64                                 { return 0 }
func (fakeClock) Sleep(ctx context.Context, d time.Duration) error { return nil }

func defineExe(name string, params []string, kind ast.ExecBodyKind, code *ast.TemplateLiteral) *ast.Directive {
	return &ast.Directive{
		Kind: ast.DirectiveExe,
		Values: map[string]ast.Node{
			"def": &ast.ExecDefinition{Name: name, Params: params, Kind: kind, Code: code},
		},
	}
}

func TestEvalExeDefStashesCallableOnVariable(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := defineExe("greet", []string{"name"}, ast.BodyTemplate, &ast.TemplateLiteral{
		Segments: []ast.TemplateSegment{{Text: "hi "}, {Ref: varRef("name")}},
	})
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	v, err := e.Get("greet")
	require.NoError(t, err)
	callable, ok := v.Metadata["callable"].(value.Callable)
	require.True(t, ok)
	assert.Equal(t, "greet", callable.Name)
	assert.Equal(t, []string{"name"}, callable.Params)
}

func TestExecInvocationTemplateBodyBindsNamedArgument(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := defineExe("greet", []string{"name"}, ast.BodyTemplate, &ast.TemplateLiteral{
		Segments: []ast.TemplateSegment{{Text: "hi "}, {Ref: varRef("name")}},
	})
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	call := &ast.ExecInvocation{
		Target: varRef("greet"),
		Args:   []ast.NamedArgument{{Name: "name", Value: strLit("ada")}},
	}
	out, err := ip.evalExecInvocation(context.Background(), call, e, false)
	require.NoError(t, err)
	assert.Equal(t, "hi ada", out.Text)
}

func TestExecInvocationImplicitFirstParameterFromPipelineInput(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := defineExe("upper", []string{"text"}, ast.BodyTemplate, &ast.TemplateLiteral{
		Segments: []ast.TemplateSegment{{Ref: varRef("text")}},
	})
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	implicit := value.Text("from-stage", value.NewDescriptor())
	call := &ast.ExecInvocation{Target: varRef("upper")}
	out, err := ip.evalExecInvocationCore(context.Background(), call, e, true, &implicit)
	require.NoError(t, err)
	assert.Equal(t, "from-stage", out.Text)
}

func TestExecInvocationWhenBodyPicksFirstMatch(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := defineExe("classify", []string{"n"}, ast.BodyTemplate, nil)
	d.Values["def"].(*ast.ExecDefinition).Kind = ast.BodyWhen
	d.Values["def"].(*ast.ExecDefinition).When = &ast.WhenExpression{
		Subtype: "value",
		Branches: []ast.WhenBranch{
			{Condition: &ast.BooleanLiteral{Value: false}, Result: strLit("no")},
			{Condition: &ast.BooleanLiteral{Value: true}, Result: strLit("yes")},
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	call := &ast.ExecInvocation{Target: varRef("classify"), Args: []ast.NamedArgument{{Name: "n", Value: &ast.NumberLiteral{Value: 1}}}}
	out, err := ip.evalExecInvocation(context.Background(), call, e, false)
	require.NoError(t, err)
	assert.Equal(t, "yes", out.Text)
}

func TestExecRunsShellBodyThroughExecutor(t *testing.T) {
	sp := &fakeSpawner{stdout: "hi\n"}
	ex := &exec.Executor{Spawner: sp, Clock: fakeClock{}}
	ip := New(ex)
	e := newTestEnv(nil)

	d := defineExe("run_it", nil, ast.BodySh, &ast.TemplateLiteral{
		Segments: []ast.TemplateSegment{{Text: "echo hi"}},
	})
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	call := &ast.ExecInvocation{Target: varRef("run_it")}
	out, err := ip.evalExecInvocation(context.Background(), call, e, false)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.Text)
}
