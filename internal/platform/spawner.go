package platform

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mlld-lang/mlld/internal/ports"
)

// RealSpawner implements ports.ProcessSpawner over os/exec, running each
// child in its own process group so Kill can escalate SIGTERM -> SIGKILL
// to the whole group rather than just the immediate child. internal/exec
// drives the grace-period timing between the two signals; this type only
// delivers them.
type RealSpawner struct{}

var _ ports.ProcessSpawner = RealSpawner{}

// Spawn starts cmdName with args, env, and cwd, returning a ChildHandle
// whose Wait/Kill drive the underlying os/exec.Cmd.
func (RealSpawner) Spawn(ctx context.Context, cmdName string, args []string, env map[string]string, stdin io.Reader, cwd string) (*ports.ChildHandle, error) {
	c := exec.Command(cmdName, args...)
	c.Dir = cwd
	c.Env = toEnvList(env)
	c.Stdin = stdin
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("platform: stdout pipe: %w", err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("platform: stderr pipe: %w", err)
	}

	var stdinPipe io.WriteCloser
	if stdin == nil {
		stdinPipe, err = c.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("platform: stdin pipe: %w", err)
		}
	}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("platform: starting %s: %w", cmdName, err)
	}

	handle := &ports.ChildHandle{
		Stdout: stdout,
		Stderr: stderr,
		Stdin:  stdinPipe,
	}
	handle.Wait = func(waitCtx context.Context) (int, error) {
		err := c.Wait()
		if err == nil {
			return 0, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	handle.Kill = func(sig ports.Signal) error {
		if c.Process == nil {
			return nil
		}
		unixSig := syscall.SIGTERM
		if sig == ports.SignalKill {
			unixSig = syscall.SIGKILL
		}
		pgid, err := unix.Getpgid(c.Process.Pid)
		if err != nil {
			// Already reaped, or Setpgid didn't take; fall back to the pid.
			return c.Process.Signal(unixSig)
		}
		return unix.Kill(-pgid, unixSig)
	}

	return handle, nil
}

func toEnvList(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
