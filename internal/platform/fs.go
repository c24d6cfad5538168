// Package platform implements the concrete ports.FileSystem,
// ports.ProcessSpawner, and ports.Clock wrappers cmd/mlld wires into the
// core (spec §6.2: "thin wrappers over the core"). None of this package
// is imported by internal/interp or any other core evaluation package —
// only by cmd/mlld, preserving the engine's "out of scope: file system,
// process spawn ... clock" boundary.
package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mlld-lang/mlld/internal/ports"
)

// OSFileSystem implements ports.FileSystem over the real local disk.
type OSFileSystem struct{}

var _ ports.FileSystem = OSFileSystem{}

// Exists reports whether path names an existing file or directory.
func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDirectory reports whether path names an existing directory.
func (OSFileSystem) IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ReadFile reads the whole file at path.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to path, creating parent directories as needed
// (spec §4.3 /output: writes to a filesystem target).
func (OSFileSystem) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("platform: creating parent directory for %s: %w", path, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Mkdir creates path and any missing parents.
func (OSFileSystem) Mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// List returns the names of dir's direct children.
func (OSFileSystem) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}
