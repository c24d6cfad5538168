package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/render"
)

// runFile evaluates the document at path top to bottom and writes its
// rendered output, per the default `mlld <file>` command (spec §6.3).
func runFile(cmd *cobra.Command, path string) error {
	sess, root, doc, err := prepareDocument(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	evalErr := sess.interp.EvaluateDocument(ctx, doc, root)
	out, renderErr := finalizeOutput(sess, root)
	if renderErr != nil {
		return renderErr
	}
	if out != "" {
		fmt.Fprint(os.Stdout, out)
	}
	return evalErr
}

// prepareDocument loads the project session for path's directory, parses
// path's source, and returns a fresh root Environment ready to evaluate it.
func prepareDocument(path string) (*session, *env.Environment, *ast.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mlld: resolving %s: %w", path, err)
	}
	sess, err := newSession(filepath.Dir(absPath))
	if err != nil {
		return nil, nil, nil, err
	}

	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mlld: reading %s: %w", path, err)
	}
	doc, err := sess.interp.Parser(string(source), absPath)
	if err != nil {
		return nil, nil, nil, err
	}

	root := env.NewRoot(sess.shared, absPath)
	return sess, root, doc, nil
}

// finalizeOutput drains the effect log to stdio/stderr sinks and renders
// the doc/both effects into the final document, applying --format.
func finalizeOutput(sess *session, root *env.Environment) (string, error) {
	effects := sess.shared.Effects.All()
	renderer := &render.Renderer{
		Sinks: render.Sinks{Stdout: os.Stdout, Stderr: os.Stderr},
		Opts:  render.Options{CollapseBlankLines: true},
	}
	renderer.Drain(effects)
	doc := renderer.Finalize(effects)

	format, err := parseOutputFormat(formatFlag)
	if err != nil {
		return "", err
	}
	return renderOutput(doc, format)
}

// runCmd implements `mlld run <name>`: evaluate the project's entry
// document for its bindings, then invoke the named top-level `/exe`
// callable with no arguments and print its result.
var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Evaluate the project entry document and invoke a named /exe callable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNamed(cmd, args[0])
	},
}

func runNamed(cmd *cobra.Command, name string) error {
	entry := entryFile()
	sess, root, doc, err := prepareDocument(entry)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := sess.interp.EvaluateDocument(ctx, doc, root); err != nil {
		return err
	}

	if _, err := root.Get(name); err != nil {
		return fmt.Errorf("mlld: no /exe named %q is defined in %s", name, entry)
	}

	// Invoke the named callable by feeding a synthetic `/show @name()`
	// directive through the ordinary document evaluator, rather than
	// reaching into interp's unexported expression-evaluation internals —
	// the same entry point any real `/show` directive in source would use.
	invocation := &ast.ExecInvocation{Target: &ast.VariableReference{Identifier: name}}
	showDirective := &ast.Directive{
		Kind:   ast.DirectiveShow,
		Values: map[string]ast.Node{"expr": invocation},
	}
	if err := sess.interp.EvaluateDocument(ctx, &ast.Document{Body: []ast.Node{showDirective}}, root); err != nil {
		return err
	}

	out, renderErr := finalizeOutput(sess, root)
	if renderErr != nil {
		return renderErr
	}
	if out != "" {
		fmt.Fprint(os.Stdout, out)
	}
	return nil
}

// entryFile is the conventional project entry document `mlld run` and the
// debug-* commands operate on, absent an explicit file argument.
func entryFile() string {
	if _, err := os.Stat("mlld.mld"); err == nil {
		return "mlld.mld"
	}
	return "main.mld"
}
