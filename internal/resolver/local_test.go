package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlld-lang/mlld/internal/diagnostic"
)

type fakeFS struct {
	files map[string]string
}

func newFakeFS() *fakeFS { return &fakeFS{files: map[string]string{}} }

func (f *fakeFS) Exists(path string) bool     { _, ok := f.files[path]; return ok }
func (f *fakeFS) IsDirectory(path string) bool { return false }
func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	s, ok := f.files[path]
	if !ok {
		return nil, &diagnostic.ResolverError{Ref: path, Err: localError("missing")}
	}
	return []byte(s), nil
}
func (f *fakeFS) WriteFile(path string, data []byte) error { f.files[path] = string(data); return nil }
func (f *fakeFS) Mkdir(path string) error                  { return nil }
func (f *fakeFS) List(dir string) ([]string, error)        { return nil, nil }

func TestLocalResolverCanonicalizesRelativeRef(t *testing.T) {
	r := NewLocalResolver(newFakeFS(), "/proj")
	canon, err := r.Canonicalize("./lib/util.mld")
	require.NoError(t, err)
	assert.Equal(t, "/proj/lib/util.mld", canon)
}

func TestLocalResolverRejectsNonLocalRef(t *testing.T) {
	r := NewLocalResolver(newFakeFS(), "/proj")
	_, err := r.Canonicalize("@scope/name")
	require.Error(t, err)
}

func TestLocalResolverLoadReturnsSourceText(t *testing.T) {
	fs := newFakeFS()
	fs.files["/proj/lib/util.mld"] = "/show \"hi\""
	r := NewLocalResolver(fs, "/proj")

	src, bindings, err := r.Load(context.Background(), "./lib/util.mld")
	require.NoError(t, err)
	assert.Equal(t, "/show \"hi\"", src)
	assert.Nil(t, bindings)
}

func TestLocalResolverLoadMissingFileFails(t *testing.T) {
	r := NewLocalResolver(newFakeFS(), "/proj")
	_, _, err := r.Load(context.Background(), "./missing.mld")
	require.Error(t, err)
	re, ok := err.(*diagnostic.ResolverError)
	require.True(t, ok)
	assert.Equal(t, "./missing.mld", re.Ref)
}

func TestChainFallsThroughToSecondResolver(t *testing.T) {
	fs := newFakeFS()
	fs.files["/proj/a.mld"] = "local"
	local := NewLocalResolver(fs, "/proj")
	reg := NewRegistryResolver(nil, nil, func(ctx context.Context, scope, name, version string) (string, error) {
		return "registry source", nil
	})
	chain := NewChain(local, reg)

	src, _, err := chain.Load(context.Background(), "./a.mld")
	require.NoError(t, err)
	assert.Equal(t, "local", src)

	src2, _, err := chain.Load(context.Background(), "@acme/left-pad@1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "registry source", src2)
}

func TestChainFailsWhenNoResolverAccepts(t *testing.T) {
	chain := NewChain(NewLocalResolver(newFakeFS(), "/proj"))
	_, err := chain.Canonicalize("@acme/left-pad@1.0.0")
	require.Error(t, err)
}
