package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlld-lang/mlld/internal/diagnostic"
)

func TestExitCodeForNilIsZero(t *testing.T) {
	assert.Equal(t, 0, exitCodeFor(nil))
}

func TestExitCodeForParseErrorIsTwo(t *testing.T) {
	assert.Equal(t, 2, exitCodeFor(&diagnostic.ParseError{Message: "bad"}))
}

func TestExitCodeForPolicyDeniedIsThree(t *testing.T) {
	assert.Equal(t, 3, exitCodeFor(&diagnostic.PolicyDenied{Rule: "cmd:git:push"}))
}

func TestExitCodeForGuardDenyIsFour(t *testing.T) {
	assert.Equal(t, 4, exitCodeFor(&diagnostic.GuardDecision{Decision: diagnostic.DecisionDeny}))
}

func TestExitCodeForGuardRetryIsOne(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(&diagnostic.GuardDecision{Decision: diagnostic.DecisionRetry}))
}

func TestExitCodeForGenericErrorIsOne(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(errors.New("boom")))
}
