// Package resolver implements ports.ModuleResolver (spec §6.2): turning an
// `/import` reference into either raw source text or a pre-evaluated
// binding map. It never speaks a registry wire protocol itself (spec §1
// non-goal) — registry refs are handed to a caller-supplied fetch
// function, the same import-cycle-avoiding callback pattern used by
// internal/tmpl.Resolver and internal/guard.Evaluator.
package resolver

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/ports"
)

// LocalResolver resolves `./`- and `/`-rooted import refs against the
// project's file system, per spec §6.2's ModuleResolver contract. Refs
// that don't look like a local path (no leading `.`/`/`) are rejected;
// wire those to a RegistryResolver instead via Chain.
type LocalResolver struct {
	FS      ports.FileSystem
	BaseDir string
}

// NewLocalResolver builds a LocalResolver rooted at baseDir.
func NewLocalResolver(fs ports.FileSystem, baseDir string) *LocalResolver {
	return &LocalResolver{FS: fs, BaseDir: baseDir}
}

func (r *LocalResolver) isLocalRef(ref string) bool {
	return strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") || strings.HasPrefix(ref, "/")
}

// Canonicalize resolves ref to an absolute, cleaned file path.
func (r *LocalResolver) Canonicalize(ref string) (string, error) {
	if !r.isLocalRef(ref) {
		return "", &diagnostic.ResolverError{Ref: ref, Err: errNotLocal}
	}
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref), nil
	}
	return filepath.Clean(filepath.Join(r.BaseDir, ref)), nil
}

// Load reads the file at ref and returns its contents as source text to
// be re-parsed and evaluated by the caller (spec §4.2's /import handling).
// LocalResolver never returns pre-evaluated bindings.
func (r *LocalResolver) Load(ctx context.Context, ref string) (string, map[string]interface{}, error) {
	abs, err := r.Canonicalize(ref)
	if err != nil {
		return "", nil, err
	}
	if !r.FS.Exists(abs) {
		return "", nil, &diagnostic.ResolverError{Ref: ref, Err: errNotFound}
	}
	data, err := r.FS.ReadFile(abs)
	if err != nil {
		return "", nil, &diagnostic.ResolverError{Ref: ref, Err: err}
	}
	return string(data), nil, nil
}

var errNotLocal = localError("not a local file reference")
var errNotFound = localError("file does not exist")

type localError string

func (e localError) Error() string { return string(e) }

// Chain tries each resolver in order, returning the first one whose
// Canonicalize succeeds. Used to compose a LocalResolver with a
// RegistryResolver into a single ports.ModuleResolver for the interpreter.
type Chain struct {
	Resolvers []ports.ModuleResolver
}

// NewChain builds a Chain over resolvers, tried in order.
func NewChain(resolvers ...ports.ModuleResolver) *Chain {
	return &Chain{Resolvers: resolvers}
}

func (c *Chain) pick(ref string) (ports.ModuleResolver, string, error) {
	var lastErr error
	for _, r := range c.Resolvers {
		canon, err := r.Canonicalize(ref)
		if err == nil {
			return r, canon, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &diagnostic.ResolverError{Ref: ref, Err: localError("no resolver in chain accepted this reference")}
	}
	return nil, "", lastErr
}

// Canonicalize implements ports.ModuleResolver.
func (c *Chain) Canonicalize(ref string) (string, error) {
	_, canon, err := c.pick(ref)
	return canon, err
}

// Load implements ports.ModuleResolver.
func (c *Chain) Load(ctx context.Context, ref string) (string, map[string]interface{}, error) {
	r, _, err := c.pick(ref)
	if err != nil {
		return "", nil, err
	}
	return r.Load(ctx, ref)
}

var (
	_ ports.ModuleResolver = (*LocalResolver)(nil)
	_ ports.ModuleResolver = (*Chain)(nil)
)
