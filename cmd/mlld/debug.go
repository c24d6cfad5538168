package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlld-lang/mlld/core/effect"
)

// debugResolutionCmd resolves a module ref through the project's resolver
// chain and prints what canonicalize/load produced, without evaluating
// anything (spec §6.3's `debug-resolution`).
var debugResolutionCmd = &cobra.Command{
	Use:   "debug-resolution <ref>",
	Short: "Show how a module ref canonicalizes and resolves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(".")
		if err != nil {
			return err
		}
		ref := args[0]
		canonical, err := sess.shared.Resolver.Canonicalize(ref)
		if err != nil {
			return fmt.Errorf("mlld: canonicalizing %q: %w", ref, err)
		}
		source, bindings, err := sess.shared.Resolver.Load(context.Background(), canonical)
		if err != nil {
			return fmt.Errorf("mlld: loading %q: %w", canonical, err)
		}

		out := map[string]interface{}{
			"ref":           ref,
			"canonical":     canonical,
			"sourceBytes":   len(source),
			"bindingKeys":   bindingKeyNames(bindings),
			"isSourceFetch": source != "",
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func bindingKeyNames(bindings map[string]interface{}) []string {
	names := make([]string, 0, len(bindings))
	for k := range bindings {
		names = append(names, k)
	}
	return names
}

// debugContextCmd evaluates a document with MLLD_DEBUG forced on so every
// directive/guard decision is recorded, then replays the CBOR trace log
// path back to the caller (spec §6.3's `debug-context`).
var debugContextCmd = &cobra.Command{
	Use:   "debug-context <file>",
	Short: "Evaluate a document with full debug tracing and report the trace log path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		os.Setenv("MLLD_DEBUG", "1")
		sess, root, doc, err := prepareDocument(args[0])
		if err != nil {
			return err
		}
		evalErr := sess.interp.EvaluateDocument(cmd.Context(), doc, root)
		fmt.Fprintf(cmd.OutOrStdout(), "trace log: %s\n", debugTraceLogPath(sess))
		return evalErr
	},
}

func debugTraceLogPath(sess *session) string {
	return sess.shared.ProjectDir + "/.mlld/debug-trace.cbor"
}

// debugTransformCmd evaluates a document and prints the raw (pre-format,
// pre-blank-line-collapse) doc-effect stream alongside the finalized
// document, so a caller can see exactly what the renderer's normalizer
// changed (spec §7's "dual transformation mode ... original and
// transformed" redesigned as before/after effect-log views).
var debugTransformCmd = &cobra.Command{
	Use:   "debug-transform <file>",
	Short: "Show the document before and after render-time normalization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, root, doc, err := prepareDocument(args[0])
		if err != nil {
			return err
		}
		evalErr := sess.interp.EvaluateDocument(cmd.Context(), doc, root)

		effects := sess.shared.Effects.All()
		raw := rawDocEffects(effects)
		final, renderErr := finalizeOutput(sess, root)
		if renderErr != nil {
			return renderErr
		}

		out := map[string]interface{}{"before": raw, "after": final}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		return evalErr
	},
}

func rawDocEffects(effects []effect.Effect) string {
	var out string
	for _, e := range effects {
		if e.Type == effect.Doc || e.Type == effect.Both {
			out += e.Content
		}
	}
	return out
}
