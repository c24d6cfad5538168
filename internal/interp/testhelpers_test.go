package interp

import (
	"fmt"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/ports"
)

// fakeFS is a minimal in-memory ports.FileSystem for directive/expression
// tests that touch /output or alligator loads.
type fakeFS struct {
	files map[string]string
}

func newFakeFS() *fakeFS { return &fakeFS{files: map[string]string{}} }

func (f *fakeFS) Exists(path string) bool     { _, ok := f.files[path]; return ok }
func (f *fakeFS) IsDirectory(path string) bool { return false }
func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	s, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("fakeFS: no such file %q", path)
	}
	return []byte(s), nil
}
func (f *fakeFS) WriteFile(path string, data []byte) error {
	f.files[path] = string(data)
	return nil
}
func (f *fakeFS) Mkdir(path string) error          { return nil }
func (f *fakeFS) List(dir string) ([]string, error) { return nil, nil }

func newTestEnv(fs *fakeFS) *env.Environment {
	shared := &env.Shared{
		Effects:    effect.NewLog(),
		ProjectDir: "/proj",
	}
	// A typed-nil *fakeFS stored in the ports.FileSystem interface field
	// would compare != nil, defeating evalOutput/evalAlligatorPath's own
	// nil checks; only wire it in when the test actually supplied one.
	if fs != nil {
		shared.FS = fs
	}
	return env.NewRoot(shared, "test.mld")
}

func jsonVal(data interface{}) value.StructuredValue {
	return value.JSONValue(data, value.NewDescriptor())
}

func boolVal(b bool) value.StructuredValue {
	return value.Bool(b, value.NewDescriptor())
}

var _ ports.FileSystem = (*fakeFS)(nil)

func strLit(s string) *ast.StringLiteral { return &ast.StringLiteral{Value: s} }

func varRef(name string) *ast.VariableReference { return &ast.VariableReference{Identifier: name} }

func bindingDirective(kind ast.DirectiveKind, name string, value ast.Expression) *ast.Directive {
	return &ast.Directive{
		Kind: kind,
		Values: map[string]ast.Node{
			"target": varRef(name),
			"value":  value,
		},
	}
}
