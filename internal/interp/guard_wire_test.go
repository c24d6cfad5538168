package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/guard"
)

func TestCheckPhaseAllowsWhenNoHookMatches(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)
	err := ip.checkPhase(context.Background(), ast.GuardBefore, guard.Target{Op: "show"}, e, false)
	assert.NoError(t, err)
}

func TestCheckPhaseDeniesOnMatchingBeforeHook(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)
	e.RegisterGuard(env.GuardHook{
		Name:   "block_show",
		Phase:  ast.GuardBefore,
		Target: "op:show",
		Body: &ast.WhenExpression{
			Subtype:  "value",
			Branches: []ast.WhenBranch{{Result: strLit("deny")}},
		},
	})

	err := ip.checkPhase(context.Background(), ast.GuardBefore, guard.Target{Op: "show"}, e, false)
	require.Error(t, err)
	gd, ok := err.(*diagnostic.GuardDecision)
	require.True(t, ok)
	assert.Equal(t, diagnostic.DecisionDeny, gd.Decision)
}

func TestCheckPhaseRejectsBareRetryOutsidePipelineStage(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)
	e.RegisterGuard(env.GuardHook{
		Name:   "retry_hook",
		Phase:  ast.GuardBefore,
		Target: "op:run",
		Body: &ast.WhenExpression{
			Subtype:  "value",
			Branches: []ast.WhenBranch{{Result: strLit("retry")}},
		},
	})

	err := ip.checkPhase(context.Background(), ast.GuardBefore, guard.Target{Op: "run"}, e, false)
	require.Error(t, err)
	gd, ok := err.(*diagnostic.GuardDecision)
	require.True(t, ok)
	assert.Contains(t, gd.Message, "only legal inside a pipeline stage")
}

func TestCheckPhasePropagatesRetryDecisionInsidePipelineStage(t *testing.T) {
	ip := New(nil)
	e := newTestEnv(nil)
	e.RegisterGuard(env.GuardHook{
		Name:   "retry_hook",
		Phase:  ast.GuardAfter,
		Target: "op:exe",
		Body: &ast.WhenExpression{
			Subtype:  "value",
			Branches: []ast.WhenBranch{{Result: strLit("retry")}},
		},
	})

	err := ip.checkPhase(context.Background(), ast.GuardAfter, guard.Target{Op: "exe"}, e, true)
	require.Error(t, err)
	gd, ok := err.(*diagnostic.GuardDecision)
	require.True(t, ok)
	assert.Equal(t, diagnostic.DecisionRetry, gd.Decision)
}

func TestDecisionFromValueInterpretsObjectForm(t *testing.T) {
	v := jsonVal(map[string]interface{}{"decision": "retry", "message": "slow down", "retryFrom": 2.0})
	d := decisionFromValue(v)
	assert.Equal(t, diagnostic.DecisionRetry, d.Decision)
	assert.Equal(t, "slow down", d.Message)
	require.NotNil(t, d.RetryFrom)
	assert.Equal(t, 2, *d.RetryFrom)
}

func TestDecisionFromValueFallsBackToTruthiness(t *testing.T) {
	assert.Equal(t, diagnostic.DecisionAllow, decisionFromValue(boolVal(true)).Decision)
	assert.Equal(t, diagnostic.DecisionDeny, decisionFromValue(boolVal(false)).Decision)
}
