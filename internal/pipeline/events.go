// Package pipeline implements the event-sourced pipeline state machine
// (spec §4.4): `base | @s1 | @s2 | ... | @sn`. Mutable state is only
// {status, currentStage, currentInput}; every derived value (attempt
// counts, restart points, per-stage history) is a pure function over an
// immutable event log (spec §9 design note).
package pipeline

import "github.com/mlld-lang/mlld/core/value"

// EventType tags one PipelineEvent.
type EventType string

const (
	EventStageStart       EventType = "stage_start"
	EventStageSuccess     EventType = "stage_success"
	EventStageRetry       EventType = "stage_retry"
	EventStageFailure     EventType = "stage_failure"
	EventPipelineComplete EventType = "pipeline_complete"
	EventPipelineAbort    EventType = "pipeline_abort"
)

// Event is one entry of the pipeline's append-only event log.
//
// Stage is 1-indexed for the explicit `| @stage` segments named in spec
// §4.4; index 0 is reserved for the base expression, which (per spec's own
// terminology: "base | @s1 | ... | @sn" — base is distinct from s1..sn) has
// no cacheable "stage 0 success" slot of its own and is instead
// re-evaluated fresh every time a rollback needs its output (see
// Machine.resolve) — this is how scenario 3 in spec §8 lets the base
// expression observe @ctx.hint from a retry issued by stage 1.
type Event struct {
	Type   EventType
	Stage  int
	Input  value.StructuredValue
	Output value.StructuredValue
	From   int
	Reason string
	Hint   *string
	Err    error
}

// MaxRetries bounds self-retries of a single stage (spec §4.4).
const MaxRetries = 10

// countStageStarts returns the number of StageStart events for `stage`
// strictly after log index `after` (exclusive).
func countStageStarts(log []Event, stage, after int) int {
	n := 0
	for i := after + 1; i < len(log); i++ {
		if log[i].Type == EventStageStart && log[i].Stage == stage {
			n++
		}
	}
	return n
}

// lastResetIndex returns the index of the most recent StageRetry event
// whose From field is strictly < stage (i.e. a retry that rolled back to
// an earlier stage and so invalidates everything from `stage` onward), or
// -1. A self-retry (From == stage) does not reset stage's attempt epoch —
// it is itself one of the attempts within that epoch, counted by
// countStageStarts over the StageStart events the self-retry produces.
func lastResetIndex(log []Event, stage int) int {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Type == EventStageRetry && log[i].From < stage {
			return i
		}
	}
	return -1
}

// lastSuccess returns the most recent StageSuccess event for `stage` that
// occurs after lastResetIndex(stage), i.e. within the current epoch.
func lastSuccess(log []Event, stage int) (value.StructuredValue, bool) {
	reset := lastResetIndex(log, stage)
	for i := len(log) - 1; i > reset; i-- {
		if log[i].Type == EventStageSuccess && log[i].Stage == stage {
			return log[i].Output, true
		}
	}
	return value.StructuredValue{}, false
}

// lastHintIndex returns the index of the most recent StageRetry event
// relevant to `stage`'s current dispatch: either a self-retry
// (Stage == stage) or a rollback that reaches it (From <= stage). Unlike
// lastResetIndex this intentionally includes self-retries, since a
// stage's own retry is exactly what sets the @ctx.hint its next attempt
// should see.
func lastHintIndex(log []Event, stage int) int {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Type != EventStageRetry {
			continue
		}
		if log[i].Stage == stage || log[i].From <= stage {
			return i
		}
	}
	return -1
}

// countSelfRetries counts StageRetry events whose Stage == stage recorded
// after the most recent retry event that rolled back past `stage` itself
// (i.e. retries within the stage's own current dispatch, for the
// MaxRetries bound).
func countSelfRetries(log []Event, stage int) int {
	n := 0
	for i := len(log) - 1; i >= 0; i-- {
		ev := log[i]
		if ev.Type == EventStageRetry && ev.Stage == stage {
			n++
			continue
		}
		if ev.Type == EventStageRetry && ev.From < stage {
			break
		}
	}
	return n
}

// latestHint returns the Hint of the most recent StageRetry event in the
// whole log, or nil. Per spec §4.4: "@ctx.hint belongs to the nearest
// ancestor retry chain that has not been truncated by a lower-stage retry"
// — since a newer retry event always supersedes an older one as "most
// recent", taking the latest unconditionally satisfies that rule.
func latestHint(log []Event) *string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Type == EventStageRetry {
			return log[i].Hint
		}
	}
	return nil
}
