package pipeline

import (
	"fmt"

	"github.com/mlld-lang/mlld/core/invariant"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
)

// ResultKind tags what a StageFunc decided.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultRetry   ResultKind = "retry"
	ResultError   ResultKind = "error"
)

// Result is what a stage body returns to the machine (spec §4.4: "Stage
// result kinds: Success(output), Retry(from?, hint?), Error(e)").
type Result struct {
	Kind   ResultKind
	Output value.StructuredValue
	From   *int // nil => local retry (defaults to the current stage)
	Hint   *string
	Reason string
	Err    error
}

// Success builds a ResultSuccess.
func Success(out value.StructuredValue) Result {
	return Result{Kind: ResultSuccess, Output: out}
}

// Retry builds a ResultRetry. from==nil means "retry this same stage".
func Retry(from *int, hint *string, reason string) Result {
	return Result{Kind: ResultRetry, From: from, Hint: hint, Reason: reason}
}

// Failure builds a ResultError.
func Failure(err error) Result {
	return Result{Kind: ResultError, Err: err}
}

// StageFunc executes one stage (or the base expression, for stage 0) given
// its derived frame and resolved input. Index 0 has no real predecessor
// and ignores input.
type StageFunc func(frame env.PipelineFrame, input value.StructuredValue) Result

// Machine drives one pipeline run. Stages[0] is the base expression;
// Stages[1..] are the explicit `| @stage` segments (spec §4.4).
type Machine struct {
	Stages   []StageFunc
	log      []Event
	lastBase value.StructuredValue
	haveBase bool
}

// NewMachine constructs a pipeline machine. base must be non-nil; stages
// may be empty (a bare `base` with no pipe segments never enters Run's
// loop body and is not a supported call — callers always pass >=1 stage).
func NewMachine(base StageFunc, stages ...StageFunc) *Machine {
	invariant.NotNil(base, "base")
	all := append([]StageFunc{base}, stages...)
	return &Machine{Stages: all}
}

// Events returns the accumulated event log (for @ctx introspection / tests).
func (m *Machine) Events() []Event {
	out := make([]Event, len(m.log))
	copy(out, m.log)
	return out
}

func (m *Machine) append(ev Event) { m.log = append(m.log, ev) }

// total is @ctx.total: the count of explicit stages (stage 0/base excluded,
// matching spec §4.4's "base | s1 | ... | sn" naming where sn is the last
// of n explicit stages).
func (m *Machine) total() int { return len(m.Stages) - 1 }

// Run executes the pipeline to completion, returning the final output or
// a diagnostic.PipelineAborted / the stage error that failed it.
func (m *Machine) Run() (value.StructuredValue, error) {
	invariant.Precondition(len(m.Stages) >= 2, "pipeline needs a base and at least one stage")

	current := 1
	input, err := m.resolve(0)
	if err != nil {
		return value.StructuredValue{}, err
	}

	for {
		frame := m.frameFor(current, input)

		m.append(Event{Type: EventStageStart, Stage: current, Input: input})
		res := m.Stages[current](frame, input)

		switch res.Kind {
		case ResultSuccess:
			m.append(Event{Type: EventStageSuccess, Stage: current, Output: res.Output})
			if res.Output.Text == "" {
				m.append(Event{Type: EventPipelineComplete, Output: res.Output})
				return res.Output, nil
			}
			if current == m.total() {
				m.append(Event{Type: EventPipelineComplete, Output: res.Output})
				return res.Output, nil
			}
			current++
			input = res.Output

		case ResultRetry:
			from := current
			if res.From != nil {
				from = *res.From
			}
			if countSelfRetries(m.log, current) >= MaxRetries {
				reason := fmt.Sprintf("stage %d exceeded %d retries", current, MaxRetries)
				m.append(Event{Type: EventPipelineAbort, Reason: reason})
				return value.StructuredValue{}, &diagnostic.PipelineAborted{Reason: reason}
			}
			m.append(Event{Type: EventStageRetry, Stage: current, From: from, Reason: res.Reason, Hint: res.Hint})
			current = from
			input, err = m.resolve(current - 1)
			if err != nil {
				return value.StructuredValue{}, err
			}

		case ResultError:
			m.append(Event{Type: EventStageFailure, Stage: current, Err: res.Err})
			return value.StructuredValue{}, res.Err

		default:
			invariant.Invariant(false, "unreachable stage result kind %q", res.Kind)
		}
	}
}

// resolve returns stage k's current output, re-executing it (and
// recursively whatever it depends on) if no cached success survives the
// latest rollback. Stage 0 (the base expression) is never cached — per
// spec §4.4's "0 = replay base input", it sits outside the numbered stage
// list s1..sn and is re-evaluated on every rollback that reaches it, which
// is how its own @ctx.try/@ctx.hint advance across retries issued by
// stage 1 (spec §8 scenario 3).
func (m *Machine) resolve(k int) (value.StructuredValue, error) {
	if k < 0 {
		return value.StructuredValue{}, nil
	}
	if k > 0 {
		if out, ok := lastSuccess(m.log, k); ok {
			return out, nil
		}
	}

	var input value.StructuredValue
	var err error
	if k > 0 {
		input, err = m.resolve(k - 1)
		if err != nil {
			return value.StructuredValue{}, err
		}
	}

	frame := m.frameFor(k, input)
	m.append(Event{Type: EventStageStart, Stage: k, Input: input})
	res := m.Stages[k](frame, input)

	switch res.Kind {
	case ResultSuccess:
		m.append(Event{Type: EventStageSuccess, Stage: k, Output: res.Output})
		if k == 0 {
			m.lastBase = res.Output
			m.haveBase = true
		}
		return res.Output, nil
	case ResultError:
		m.append(Event{Type: EventStageFailure, Stage: k, Err: res.Err})
		return value.StructuredValue{}, res.Err
	case ResultRetry:
		from := k
		if res.From != nil {
			from = *res.From
		}
		if countSelfRetries(m.log, k) >= MaxRetries {
			reason := fmt.Sprintf("stage %d exceeded %d retries", k, MaxRetries)
			m.append(Event{Type: EventPipelineAbort, Reason: reason})
			return value.StructuredValue{}, &diagnostic.PipelineAborted{Reason: reason}
		}
		m.append(Event{Type: EventStageRetry, Stage: k, From: from, Reason: res.Reason, Hint: res.Hint})
		return m.resolve(from)
	default:
		invariant.Invariant(false, "unreachable stage result kind %q", res.Kind)
		return value.StructuredValue{}, nil
	}
}

// frameFor derives the @ctx view for stage k given its resolved input
// (spec §4.4 / §9: every ctx field is a pure function of the event log).
func (m *Machine) frameFor(k int, input value.StructuredValue) env.PipelineFrame {
	var attempt int
	var hint *string

	if k == 0 {
		// Stage 0 (the base expression) has no cache-invalidation epoch of
		// its own — it is simply re-run every time a rollback needs it, so
		// its attempt count is every start it has ever had, and it always
		// sees whatever retry most recently happened anywhere in the run.
		attempt = countStageStarts(m.log, 0, -1) + 1
		hint = latestHint(m.log)
	} else {
		reset := lastResetIndex(m.log, k)
		attempt = countStageStarts(m.log, k, reset) + 1
		if hintIdx := lastHintIndex(m.log, k); hintIdx >= 0 {
			hint = m.log[hintIdx].Hint
		}
	}

	var outputs []value.StructuredValue
	for i := 0; i < k; i++ {
		if i == 0 {
			if k == 1 {
				// stage 1's own predecessor output is exactly the input it
				// was just handed.
				outputs = append(outputs, input)
			} else if m.haveBase {
				outputs = append(outputs, m.lastBase)
			}
			continue
		}
		if out, ok := lastSuccess(m.log, i); ok {
			outputs = append(outputs, out)
		}
	}

	return env.PipelineFrame{
		Try:     attempt,
		Stage:   k,
		Total:   m.total(),
		Hint:    hint,
		Outputs: outputs,
	}
}
