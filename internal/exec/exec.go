// Package exec implements mlld's command/code executor (spec §4.7):
// dispatch across the `cmd`/`sh`/`js`/`node`/`py`/`prose` body kinds,
// stdout auto-parse to StructuredValue for pipeline stages (invariant
// V3), SIGTERM→SIGKILL resource lifetime, streaming, and the ARG_MAX
// heredoc fallback.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/ports"
)

// shellOperators are rejected in a `cmd` body's rendered text (spec §4.7:
// "rejects shell operators ... at the mlld boundary; they must be inside
// sh").
var shellOperators = []string{"|", ">", "<", "&&", "||", ";", "2>&1"}

// ARGMaxBytes bounds the combined serialized environment + command length
// before the heredoc fallback kicks in (spec §4.7). 128 KiB is the
// conservative end of typical OS limits (Linux's default is ~2MiB, macOS
// ~256KiB-1MiB depending on version); picking the low end means the
// fallback engages before any target platform would actually reject the
// exec call.
const ARGMaxBytes = 128 * 1024

// Request is one command/code invocation.
type Request struct {
	Kind EffectiveKind
	// Command is the fully rendered (template-interpolated, already
	// shell-quoted for cmd/escaped-per-context by internal/tmpl) body text.
	Command string
	// Args are positional parameters for sh ($1 $2 ...) / node / py bodies.
	Args []string
	Env         map[string]string
	Cwd         string
	Stdin       io.Reader
	Stream      bool // with { stream: true }
	OnChunk     func(chunk []byte, isStderr bool, atMillis int64)
	GracePeriod time.Duration // SIGTERM -> SIGKILL window; 0 uses DefaultGrace
	// InPipelineStage marks that stdout should be auto-parsed per invariant
	// V3; outside a pipeline stage stdout is plain text.
	InPipelineStage bool
}

// EffectiveKind narrows ast.ExecBodyKind to the subset exec actually runs
// (BodyTemplate/BodyWhen/BodyForeach never reach the executor).
type EffectiveKind = ast.ExecBodyKind

// DefaultGrace is the SIGTERM->SIGKILL grace window when Request.GracePeriod
// is zero.
const DefaultGrace = 5 * time.Second

// Result is what one execution produced.
type Result struct {
	Exit   int
	Stdout string
	Stderr string
}

// Executor runs command/code bodies through the process/JS ports.
type Executor struct {
	Spawner ports.ProcessSpawner
	Clock   ports.Clock
	Prose   ports.ProseAdapter
	JS      JSRuntime
}

// JSRuntime runs an in-process `js { ... }` body (spec §4.7: "js is an
// in-process sandbox with a restricted standard library").
type JSRuntime interface {
	Run(ctx context.Context, script string, locals map[string]interface{}) (string, error)
}

// Run dispatches req.Kind to the matching strategy and converts stdout to
// a StructuredValue per invariant V3 when req.InPipelineStage.
func (e *Executor) Run(ctx context.Context, req Request) (value.StructuredValue, Result, error) {
	var res Result
	var err error

	switch req.Kind {
	case ast.BodyCmd:
		res, err = e.runCmd(ctx, req)
	case ast.BodySh:
		res, err = e.runShell(ctx, req)
	case ast.BodyNode:
		res, err = e.runSpawned(ctx, "node", []string{"-e", req.Command}, req)
	case ast.BodyPy:
		res, err = e.runSpawned(ctx, "python3", []string{"-c", req.Command}, req)
	case ast.BodyJS:
		res, err = e.runJS(ctx, req)
	case ast.BodyProse:
		res, err = e.runProse(ctx, req)
	default:
		return value.StructuredValue{}, Result{}, fmt.Errorf("exec: unsupported body kind %q", req.Kind)
	}
	if err != nil {
		return value.StructuredValue{}, res, err
	}
	if res.Exit != 0 {
		tail := res.Stderr
		if len(tail) > 4096 {
			tail = tail[len(tail)-4096:]
		}
		return value.StructuredValue{}, res, &diagnostic.ExecutionError{Exit: res.Exit, StderrTail: tail}
	}

	sec := value.NewDescriptor()
	if req.InPipelineStage {
		return value.CommandOutput(res.Stdout, sec), res, nil
	}
	return value.Text(res.Stdout, sec), res, nil
}

// runCmd rejects shell operators in the rendered command, then runs it as
// a direct argv split (no shell interposed) — "cmd" bodies are never
// handed to /bin/sh (spec §4.7).
func (e *Executor) runCmd(ctx context.Context, req Request) (Result, error) {
	for _, op := range shellOperators {
		if strings.Contains(req.Command, op) {
			return Result{}, &diagnostic.ExecutionError{
				Exit:       2,
				StderrTail: fmt.Sprintf("cmd body contains shell operator %q; use sh { ... } instead", op),
			}
		}
	}
	argv := splitWords(req.Command)
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("exec: empty cmd body")
	}
	return e.spawn(ctx, argv[0], argv[1:], req)
}

// runShell runs a full shell body ("sh"), with positional
// parameters passed after the script per the `sh -c script $0 $1 ...`
// convention.
func (e *Executor) runShell(ctx context.Context, req Request) (Result, error) {
	argv := append([]string{"-c", req.Command, "sh"}, req.Args...)
	return e.spawn(ctx, "sh", argv, req)
}

func (e *Executor) runSpawned(ctx context.Context, program string, flags []string, req Request) (Result, error) {
	argv := append(flags, req.Args...)
	return e.spawn(ctx, program, argv, req)
}

func (e *Executor) runJS(ctx context.Context, req Request) (Result, error) {
	if e.JS == nil {
		return Result{}, fmt.Errorf("exec: no JS runtime configured")
	}
	locals := make(map[string]interface{}, len(req.Args))
	for i, a := range req.Args {
		locals[fmt.Sprintf("arg%d", i+1)] = a
	}
	out, err := e.JS.Run(ctx, req.Command, locals)
	if err != nil {
		return Result{Exit: 1, Stderr: err.Error()}, nil
	}
	return Result{Exit: 0, Stdout: out}, nil
}

func (e *Executor) runProse(ctx context.Context, req Request) (Result, error) {
	if e.Prose == nil {
		return Result{}, fmt.Errorf("exec: no prose adapter configured")
	}
	out, err := e.Prose.Complete(ctx, req.Command)
	if err != nil {
		return Result{Exit: 1, Stderr: err.Error()}, nil
	}
	return Result{Exit: 0, Stdout: out}, nil
}

// spawn runs argv via the process port, wires the ARG_MAX heredoc
// fallback, streams chunks when requested, and enforces the
// SIGTERM-then-SIGKILL grace window on cancellation (spec §4.7).
func (e *Executor) spawn(ctx context.Context, program string, args []string, req Request) (Result, error) {
	envLen := 0
	for k, v := range req.Env {
		envLen += len(k) + len(v) + 2
	}
	cmdLen := len(program)
	for _, a := range args {
		cmdLen += len(a) + 1
	}

	var stdin io.Reader = req.Stdin
	if envLen+cmdLen > ARGMaxBytes {
		// Heredoc fallback: ship the command text over stdin instead of
		// argv, never re-stringifying structured data (spec §4.7).
		stdin = strings.NewReader(req.Command)
		args = append([]string{"-s"}, args[1:]...)
	}

	handle, err := e.Spawner.Spawn(ctx, program, args, req.Env, stdin, req.Cwd)
	if err != nil {
		return Result{}, err
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		drain(handle.Stdout, &stdoutBuf, false, req, e.Clock)
	}()
	// done closes once both streams are fully drained.
	done := make(chan struct{})
	go func() {
		defer close(done)
		drain(handle.Stderr, &stderrBuf, true, req, e.Clock)
		<-stdoutDone
	}()

	grace := req.GracePeriod
	if grace <= 0 {
		grace = DefaultGrace
	}

	exitCh := make(chan struct {
		code int
		err  error
	}, 1)
	go func() {
		code, werr := handle.Wait(ctx)
		exitCh <- struct {
			code int
			err  error
		}{code, werr}
	}()

	select {
	case res := <-exitCh:
		<-done
		return Result{Exit: res.code, Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}, res.err
	case <-ctx.Done():
		_ = handle.Kill(ports.SignalTerm)
		graceTimer := time.NewTimer(grace)
		defer graceTimer.Stop()
		select {
		case res := <-exitCh:
			<-done
			return Result{Exit: res.code, Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}, res.err
		case <-graceTimer.C:
			_ = handle.Kill(ports.SignalKill)
			<-exitCh
			return Result{Exit: -1, Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}, ctx.Err()
		}
	}
}

func drain(r io.Reader, buf *bytes.Buffer, isStderr bool, req Request, clock ports.Clock) {
	if r == nil {
		return
	}
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if req.Stream && req.OnChunk != nil {
				var at int64
				if clock != nil {
					at = clock.NowMillis()
				}
				req.OnChunk(append([]byte(nil), chunk[:n]...), isStderr, at)
			}
		}
		if err != nil {
			return
		}
	}
}

// splitWords does minimal whitespace splitting for a shell-operator-free
// cmd body (quoting is already resolved by internal/tmpl's ShellCommand
// escaping before the text reaches here).
func splitWords(s string) []string {
	return strings.Fields(s)
}
