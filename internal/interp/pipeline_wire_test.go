package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
)

func TestEvalPipelineExpressionRunsBaseThenStage(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := defineExe("upper", []string{"in"}, ast.BodyTemplate, &ast.TemplateLiteral{
		Segments: []ast.TemplateSegment{{Ref: varRef("in")}},
	})
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	node := &ast.PipelineExpression{
		Base: strLit("seed"),
		Stages: []ast.PipelineStage{
			{Call: &ast.ExecInvocation{Target: varRef("upper")}},
		},
	}
	out, err := ip.evalPipelineExpression(context.Background(), node, e)
	require.NoError(t, err)
	assert.Equal(t, "seed", out.Text)
}

func TestResultFromErrUnwrapsGuardRetryDecision(t *testing.T) {
	from := 1
	decision := &diagnostic.GuardDecision{Decision: diagnostic.DecisionRetry, RetryFrom: &from, Message: "try again"}
	res := resultFromErr(value.StructuredValue{}, decision)
	assert.EqualValues(t, "retry", res.Kind)
	require.NotNil(t, res.From)
	assert.Equal(t, 1, *res.From)
	assert.Equal(t, "try again", res.Reason)
}

func TestResultFromErrFoldsGuardDenyAsFailure(t *testing.T) {
	decision := &diagnostic.GuardDecision{Decision: diagnostic.DecisionDeny, Message: "nope"}
	res := resultFromErr(value.StructuredValue{}, decision)
	assert.EqualValues(t, "error", res.Kind)
	assert.Equal(t, decision, res.Err)
}

func TestResultFromErrSuccessWhenNoError(t *testing.T) {
	v := value.Text("ok", value.NewDescriptor())
	res := resultFromErr(v, nil)
	assert.EqualValues(t, "success", res.Kind)
	assert.Equal(t, "ok", res.Output.Text)
}

func TestForExpressionFiltersFalsyItemsAndPreservesOrder(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	node := &ast.ForExpression{
		Binding: "n",
		Source: &ast.ArrayLiteral{Elements: []ast.Expression{
			&ast.NumberLiteral{Value: 0},
			&ast.NumberLiteral{Value: 1},
			&ast.NumberLiteral{Value: 2},
		}},
		When:         varRef("n"), // 0 is falsy, 1 and 2 are truthy
		IsExpression: true,
		ResultExpr:   varRef("n"),
	}
	out, err := ip.evalForExpression(context.Background(), node, e)
	require.NoError(t, err)
	arr, ok := out.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, arr, 2)
	assert.Equal(t, 1.0, arr[0])
	assert.Equal(t, 2.0, arr[1])
}

func TestForDirectiveRunsBodyForEffectsAndDiscardsResult(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)

	d := &ast.Directive{
		Kind: ast.DirectiveFor,
		Values: map[string]ast.Node{
			"for": &ast.ForExpression{
				Binding: "n",
				Source: &ast.ArrayLiteral{Elements: []ast.Expression{
					strLit("a"), strLit("b"),
				}},
				Body: []ast.Node{
					&ast.Directive{
						Kind: ast.DirectiveShow,
						Values: map[string]ast.Node{
							"expr": varRef("n"),
						},
					},
				},
			},
		},
	}
	require.NoError(t, ip.evalDirective(context.Background(), d, e))

	effects := e.Shared().Effects.All()
	require.Len(t, effects, 2)
	assert.Equal(t, "a", effects[0].Content)
	assert.Equal(t, "b", effects[1].Content)
}
