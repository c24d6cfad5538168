package main

import "github.com/mlld-lang/mlld/internal/diagnostic"

// exitCodeFor maps an evaluation error to the CLI exit code spec §6.3
// assigns it. nil maps to 0 (the caller never calls this for success).
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch e := err.(type) {
	case *diagnostic.ParseError:
		return 2
	case *diagnostic.PolicyDenied:
		return 3
	case *diagnostic.GuardDecision:
		if e.Decision == diagnostic.DecisionDeny {
			return 4
		}
		return 1
	default:
		return 1
	}
}
