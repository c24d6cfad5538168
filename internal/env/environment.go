// Package env implements the Environment: name resolution, scope lifecycle,
// and the shared plumbing (effect emitter, file system, clock, spawner,
// resolver registry, path context) described in spec §4.1.
package env

import (
	"sync"

	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/core/invariant"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/ports"
)

// ChildKind enumerates the child-scope flavors an Environment can spawn
// (spec §4.1, create_child).
type ChildKind string

const (
	ChildBlock         ChildKind = "block"
	ChildLoopIteration ChildKind = "loop_iteration"
	ChildImport        ChildKind = "import"
	ChildExecCall      ChildKind = "exec_call"
	ChildPipelineStage ChildKind = "pipeline_stage"
	ChildGuard         ChildKind = "guard"
)

// Shared holds the plumbing every Environment in a tree points to by
// reference; it is never mutated after construction (spec §4.1 invariant).
type Shared struct {
	Effects    *effect.Log
	FS         ports.FileSystem
	Clock      ports.Clock
	Spawner    ports.ProcessSpawner
	Keychain   ports.KeychainProvider
	Resolver   ports.ModuleResolver
	Prose      ports.ProseAdapter
	ProjectDir string // directory containing mlld-config.json; @base/@root
	Debug      bool
	NoStream   bool
}

// stateWrite is one entry in the per-request write log (spec §4.1,
// record_state_write — used by dynamic modules like @state).
type stateWrite struct {
	Key   string
	Value value.StructuredValue
}

// Environment is a single lexical scope. Child scopes do not leak names
// upward except via explicit /export (spec §4.1 invariant).
type Environment struct {
	shared *Shared
	parent *Environment
	kind   ChildKind

	mu      sync.RWMutex
	vars    map[string]*value.Variable
	exports map[string]bool // names recorded by /export, module scope only

	isModuleRoot bool
	currentFile  string

	// Frame stacks backing the read-only @ctx/@mx views (spec §9 design
	// note: "model as scoped read-only views over the current environment
	// frame, not as real variables").
	pipelineFrames []PipelineFrame
	guardFrames    []GuardFrame
	loopFrames     []LoopFrame

	// policyStack holds the /policy frames pushed in this scope, innermost
	// last. Each environment owns its own slice; PolicyStack walks the
	// parent chain to build the full cactus stack.
	policyStack []PolicyFrame

	// guards holds the /guard hooks registered in this scope; Guards walks
	// the parent chain to collect every visible hook.
	guards []GuardHook

	writeLog []stateWrite

	isImportingContent bool
}

// NewRoot constructs the root Environment for a document evaluation.
func NewRoot(shared *Shared, file string) *Environment {
	invariant.NotNil(shared, "shared")
	return &Environment{
		shared:       shared,
		kind:         "",
		vars:         make(map[string]*value.Variable),
		exports:      make(map[string]bool),
		isModuleRoot: true,
		currentFile:  file,
	}
}

// Shared exposes the tree-wide plumbing.
func (e *Environment) Shared() *Shared { return e.shared }

// CurrentFile is the source file this environment (or its nearest
// file-bearing ancestor) is evaluating.
func (e *Environment) CurrentFile() string {
	for env := e; env != nil; env = env.parent {
		if env.currentFile != "" {
			return env.currentFile
		}
	}
	return ""
}

// Get resolves the nearest binding, walking parent scopes (spec §4.1 get).
func (e *Environment) Get(name string) (*value.Variable, error) {
	for env := e; env != nil; env = env.parent {
		env.mu.RLock()
		v, ok := env.vars[name]
		env.mu.RUnlock()
		if ok {
			return v, nil
		}
	}
	return nil, &diagnostic.VariableNotFound{Name: name}
}

// KnownNames returns every name visible from this scope, for "did you
// mean" suggestions.
func (e *Environment) KnownNames() []string {
	seen := map[string]bool{}
	var out []string
	for env := e; env != nil; env = env.parent {
		env.mu.RLock()
		for n := range env.vars {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		env.mu.RUnlock()
	}
	return out
}

// Set installs a binding. `var` rejects rebinding within the same module
// scope; `let` may shadow within a block (spec §4.1 set).
func (e *Environment) Set(v value.Variable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v.SourceKind == value.SourceVar {
		// var is module-scoped: look for an existing binding declared as
		// `var` anywhere up to (and including) the nearest module root.
		for env := e; env != nil; env = env.parent {
			var existing *value.Variable
			var ok bool
			if env == e {
				// e.mu is already held for writing above.
				existing, ok = env.vars[v.Name]
			} else {
				env.mu.RLock()
				existing, ok = env.vars[v.Name]
				env.mu.RUnlock()
			}
			if ok && existing.SourceKind == value.SourceVar {
				return &diagnostic.DuplicateVariable{Name: v.Name}
			}
			if env.isModuleRoot {
				break
			}
		}
	}

	vv := v
	e.vars[v.Name] = &vv
	return nil
}

// CreateChild spawns a child scope of the given kind (spec §4.1
// create_child). Child inherits parent map by chained lookup.
func (e *Environment) CreateChild(kind ChildKind) *Environment {
	return &Environment{
		shared:  e.shared,
		parent:  e,
		kind:    kind,
		vars:    make(map[string]*value.Variable),
		exports: make(map[string]bool),
	}
}

// IsModuleScope reports whether this environment is a module root (used by
// the /var-in-block-scope check; SPEC_FULL.md Open Question #1).
func (e *Environment) IsModuleScope() bool { return e.isModuleRoot }

// EmitEffect forwards an effect to the shared log as given, suppressing
// Doc/Both effects while importing (spec §4.8). It does not add any
// pipeline security context to the effect's descriptor.
func (e *Environment) EmitEffect(ef effect.Effect) {
	if e.isImportingAnywhere() && (ef.Type == effect.Doc || ef.Type == effect.Both) {
		return
	}
	e.shared.Effects.Append(ef)
}

func (e *Environment) isImportingAnywhere() bool {
	for env := e; env != nil; env = env.parent {
		if env.isImportingContent {
			return true
		}
	}
	return false
}

// SetImporting marks this environment (and its descendants) as
// side-effect-free for document composition, per spec §4.8.
func (e *Environment) SetImporting(v bool) { e.isImportingContent = v }

// RecordStateWrite appends to the per-request write log (spec §4.1).
func (e *Environment) RecordStateWrite(key string, v value.StructuredValue) {
	root := e.moduleRoot()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.writeLog = append(root.writeLog, stateWrite{Key: key, Value: v})
}

// WriteLog returns a snapshot of the per-request state write log.
func (e *Environment) WriteLog() []stateWrite {
	root := e.moduleRoot()
	root.mu.RLock()
	defer root.mu.RUnlock()
	out := make([]stateWrite, len(root.writeLog))
	copy(out, root.writeLog)
	return out
}

func (e *Environment) moduleRoot() *Environment {
	env := e
	for env.parent != nil {
		env = env.parent
	}
	return env
}

// Export records names in the module's export manifest (spec §4.2 /export).
func (e *Environment) Export(names ...string) {
	root := e.moduleRoot()
	root.mu.Lock()
	defer root.mu.Unlock()
	for _, n := range names {
		root.exports[n] = true
	}
}

// Exports returns the bound variables named by /export for this module.
func (e *Environment) Exports() map[string]value.Variable {
	root := e.moduleRoot()
	root.mu.RLock()
	names := make([]string, 0, len(root.exports))
	for n := range root.exports {
		names = append(names, n)
	}
	root.mu.RUnlock()

	out := make(map[string]value.Variable, len(names))
	for _, n := range names {
		if v, err := e.Get(n); err == nil {
			out[n] = *v
		}
	}
	return out
}
