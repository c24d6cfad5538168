package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dop251/goja"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/internal/config"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/exec"
	"github.com/mlld-lang/mlld/internal/interp"
	"github.com/mlld-lang/mlld/internal/platform"
	"github.com/mlld-lang/mlld/internal/ports"
	"github.com/mlld-lang/mlld/internal/resolver"
	"github.com/mlld-lang/mlld/internal/sdk"
)

// session bundles everything one CLI invocation needs: the loaded project
// config/lockfile, the wired ports, and a fresh Interpreter. Every command
// in this package builds one via newSession before doing any real work.
type session struct {
	cfg     *config.Config
	lock    *config.Lockfile
	shared  *env.Shared
	interp  *interp.Interpreter
	emitter *sdk.Emitter
	tracer  *sdk.Tracer
}

// newSession loads mlld-config.json/mlld-lock.json from projectDir (either
// may be absent — an unconfigured directory still runs, just without
// policy/lockfile pins) and wires the concrete ports.* adapters plus a
// resolver chain around them.
func newSession(projectDir string) (*session, error) {
	cfg, err := loadOptionalConfig(filepath.Join(projectDir, "mlld-config.json"))
	if err != nil {
		return nil, err
	}
	lock, err := loadOptionalLockfile(filepath.Join(projectDir, "mlld-lock.json"))
	if err != nil {
		return nil, err
	}

	fs := platform.OSFileSystem{}
	spawner := platform.RealSpawner{}
	clock := platform.SystemClock{}
	keychain := platform.NewFileKeychain(filepath.Join(projectDir, ".mlld"))

	chain := resolver.NewChain(
		resolver.NewLocalResolver(fs, projectDir),
		resolver.NewRegistryResolver(cfg, lock, httpRegistryFetcher()),
	)

	var prose ports.ProseAdapter
	if apiKey, err := keychain.Get("anthropic", "default"); err == nil {
		prose = platform.NewAnthropicProseAdapter(apiKey)
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		prose = platform.NewAnthropicProseAdapter(apiKey)
	}

	tracer, err := sdk.NewEnvGatedTracer(traceWriter(projectDir))
	if err != nil {
		return nil, fmt.Errorf("mlld: setting up debug tracer: %w", err)
	}
	emitter := sdk.NewEmitter(tracer.Sink())

	shared := &env.Shared{
		Effects:    effect.NewLog(),
		FS:         fs,
		Clock:      clock,
		Spawner:    spawner,
		Keychain:   keychain,
		Resolver:   chain,
		Prose:      prose,
		ProjectDir: projectDir,
		Debug:      os.Getenv("MLLD_DEBUG") != "",
		NoStream:   os.Getenv("MLLD_NO_STREAM") != "" || noStreamFlag,
	}

	executor := &exec.Executor{
		Spawner: shared.Spawner,
		Clock:   shared.Clock,
		Prose:   shared.Prose,
		JS:      gojaRuntime{},
	}
	ip := interp.New(executor)
	ip.Parser = unavailableParser

	return &session{cfg: cfg, lock: lock, shared: shared, interp: ip, emitter: emitter, tracer: tracer}, nil
}

func loadOptionalConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return config.Load(path)
}

func loadOptionalLockfile(path string) (*config.Lockfile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return config.LoadLockfile(path)
}

// traceWriter returns a literal nil io.Writer (not a typed-nil *os.File)
// when tracing can't be set up, so sdk.NewTracer's `w == nil` check still
// sees an untyped nil and falls back to its no-op mode correctly.
func traceWriter(projectDir string) io.Writer {
	if os.Getenv("MLLD_DEBUG") == "" {
		return nil
	}
	path := filepath.Join(projectDir, ".mlld", "debug-trace.cbor")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil
	}
	return f
}

// unavailableParser backs Interpreter.Parser. Source grammar and AST
// construction is an external front-end this module never implements
// (spec's scope explicitly excludes it); this stub gives /import's
// raw-source-text path an honest, typed failure instead of silently
// mis-parsing.
func unavailableParser(source, file string) (*ast.Document, error) {
	return nil, &diagnostic.ParseError{
		Message: fmt.Sprintf("no source parser is wired into this build; %s must be imported as a pre-evaluated binding map, not raw source", file),
	}
}

// gojaRuntime implements exec.JSRuntime over goja, an in-process
// JS engine.
type gojaRuntime struct{}

func (gojaRuntime) Run(ctx context.Context, script string, locals map[string]interface{}) (string, error) {
	vm := goja.New()
	for name, val := range locals {
		if err := vm.Set(name, val); err != nil {
			return "", fmt.Errorf("mlld: binding js local %q: %w", name, err)
		}
	}
	v, err := vm.RunString(script)
	if err != nil {
		return "", fmt.Errorf("mlld: js execution: %w", err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}
