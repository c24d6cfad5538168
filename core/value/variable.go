package value

import "github.com/mlld-lang/mlld/core/ast"

// SourceKind is how a Variable came to exist (spec §3.2).
type SourceKind string

const (
	SourceVar    SourceKind = "var"
	SourceLet    SourceKind = "let"
	SourceExe    SourceKind = "exe"
	SourcePath   SourceKind = "path"
	SourceImport SourceKind = "import"
)

// ScopeKind controls a Variable's visibility (spec §3.2).
type ScopeKind string

const (
	ScopeModule    ScopeKind = "module"
	ScopeBlock     ScopeKind = "block"
	ScopeParameter ScopeKind = "parameter"
)

// Variable binds a name to a StructuredValue within an Environment.
//
// Invariant V2 (spec §3.2): Variable.Value.Metadata.Security equals the
// descriptor applied at creation time merged with any explicit labels (e.g.
// `var secret @x = ...` forces label "secret").
type Variable struct {
	Name       string
	Value      StructuredValue
	SourceKind SourceKind
	ScopeKind  ScopeKind
	Metadata   map[string]interface{}
}

// NewVariable builds a Variable, applying explicit labels on top of the
// expression's own descriptor per invariant V2.
func NewVariable(name string, val StructuredValue, source SourceKind, scope ScopeKind, explicitLabels ...string) Variable {
	sec := val.Metadata.Security.Clone()
	for _, l := range explicitLabels {
		sec = sec.WithLabel(l)
	}
	val = val.WithSecurity(sec)
	return Variable{Name: name, Value: val, SourceKind: source, ScopeKind: scope}
}

// Callable is the descriptor stored by an `exe`-kind Variable: the parameter
// list, body kind, and any static policy/guard tags attached at definition
// time (spec §4.2, `/exe`).
type Callable struct {
	Name       string
	Params     []string
	BodyKind   string
	PolicyTags []string
	GuardTags  []string
	Def        *ast.ExecDefinition
}
