package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// envCmd groups the `mlld env ...` subcommands (spec §6.3): inspecting,
// capturing, and restricting the MLLD_-prefixed environment `@input` may
// read (spec §6.4).
var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Inspect and restrict the MLLD_-prefixed environment available to @input",
}

func init() {
	envCmd.AddCommand(envListCmd, envCaptureCmd, envSpawnCmd, envShellCmd)
}

// mlldEnv returns the current process's MLLD_-prefixed environment as a
// sorted name->value map — the only variables `@input` may ever see
// (spec §6.4).
func mlldEnv() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "MLLD_") {
			continue
		}
		out[name] = value
	}
	return out
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List MLLD_-prefixed environment variable names visible to @input",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(mlldEnv()))
		for name := range mlldEnv() {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var envCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Print the current MLLD_-prefixed environment as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mlldEnv())
	},
}

// allowedEnvFor restricts mlldEnv() further to mlld-lock.json's
// security.allowedEnv allowlist, when a lockfile is present.
func allowedEnvFor(sess *session) map[string]string {
	all := mlldEnv()
	if sess.lock == nil || len(sess.lock.Security.AllowedEnv) == 0 {
		return all
	}
	allowed := map[string]bool{}
	for _, name := range sess.lock.Security.AllowedEnv {
		allowed[name] = true
	}
	out := map[string]string{}
	for name, value := range all {
		if allowed[name] {
			out[name] = value
		}
	}
	return out
}

var envSpawnCmd = &cobra.Command{
	Use:   "spawn -- <command> [args...]",
	Short: "Spawn a command with only the lockfile-allowed MLLD_ environment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(".")
		if err != nil {
			return err
		}
		handle, err := sess.shared.Spawner.Spawn(context.Background(), args[0], args[1:], allowedEnvFor(sess), nil, "")
		if err != nil {
			return err
		}
		go io.Copy(os.Stdout, handle.Stdout)
		go io.Copy(os.Stderr, handle.Stderr)
		exitCode, err := handle.Wait(context.Background())
		if err != nil {
			return err
		}
		if exitCode != 0 {
			return fmt.Errorf("mlld: %s exited %d", args[0], exitCode)
		}
		return nil
	},
}

var envShellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Launch an interactive shell restricted to the lockfile-allowed MLLD_ environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(".")
		if err != nil {
			return err
		}
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		// An interactive shell needs a real attached TTY, which
		// ports.ProcessSpawner's piped ChildHandle doesn't provide (it's
		// built for capturing output, spec §6.2) — os/exec's own
		// inherited-stdio wiring is the only way to hand the terminal
		// straight to the child.
		c := exec.Command(shell)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		for name, value := range allowedEnvFor(sess) {
			c.Env = append(c.Env, name+"="+value)
		}
		return c.Run()
	},
}
