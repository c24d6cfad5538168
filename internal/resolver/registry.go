package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/mlld-lang/mlld/internal/config"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/ports"
)

var _ ports.ModuleResolver = (*RegistryResolver)(nil)

// refPattern matches registry refs of the form "@scope/name" or
// "@scope/name@1.2.3". Anything else is left to another resolver in the
// Chain (typically LocalResolver).
var refPattern = regexp.MustCompile(`^@([a-zA-Z0-9_-]+)/([a-zA-Z0-9_.-]+)(?:@([a-zA-Z0-9.+-]+))?$`)

// Fetcher retrieves the raw module source for a canonicalized registry
// ref. It is supplied by the CLI layer — this package only speaks the
// canonicalize/verify/cache contract, never the registry's HTTP protocol
// itself (spec §1 non-goal: "module registry ... network protocols").
type Fetcher func(ctx context.Context, scope, name, version string) (source string, err error)

// RegistryResolver resolves `@scope/name[@version]` refs against a
// project's mlld-lock.json pins, verifying fetched content against the
// lockfile's recorded integrity hash before handing source text back to
// the interpreter.
type RegistryResolver struct {
	Lock    *config.Lockfile
	Cfg     *config.Config
	Fetch   Fetcher
	fetched map[string]string // canonical ref -> already-verified source, this run
}

// NewRegistryResolver builds a RegistryResolver. cfg may be nil (no
// per-module resolver/version pins beyond the lockfile); lock may be nil
// only when integrity checking is intentionally disabled (e.g. in tests).
func NewRegistryResolver(cfg *config.Config, lock *config.Lockfile, fetch Fetcher) *RegistryResolver {
	return &RegistryResolver{Cfg: cfg, Lock: lock, Fetch: fetch, fetched: map[string]string{}}
}

func parseRef(ref string) (scope, name, version string, ok bool) {
	m := refPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// Canonicalize normalizes a ref to "@scope/name@version", resolving an
// unpinned version from mlld-config.json's modules block or mlld-lock.json
// when the ref itself doesn't specify one.
func (r *RegistryResolver) Canonicalize(ref string) (string, error) {
	scope, name, version, ok := parseRef(ref)
	if !ok {
		return "", &diagnostic.ResolverError{Ref: ref, Err: localError("not a registry reference")}
	}
	key := scope + "/" + name
	if version == "" {
		version = r.pinnedVersion(key)
	}
	if version == "" {
		return "", &diagnostic.ResolverError{Ref: ref, Err: localError("no version pinned in mlld-config.json or mlld-lock.json for " + key)}
	}
	return fmt.Sprintf("@%s/%s@%s", scope, name, version), nil
}

func (r *RegistryResolver) pinnedVersion(key string) string {
	if r.Lock != nil {
		if m, ok := r.Lock.Modules[key]; ok {
			return m.Version
		}
	}
	if r.Cfg != nil {
		if m, ok := r.Cfg.Modules[key]; ok {
			return m.Version
		}
	}
	return ""
}

// Load fetches and integrity-verifies a registry module, returning its
// source text for the caller to re-parse (mirrors LocalResolver: registry
// modules are always raw source, never pre-evaluated bindings).
func (r *RegistryResolver) Load(ctx context.Context, ref string) (string, map[string]interface{}, error) {
	canon, err := r.Canonicalize(ref)
	if err != nil {
		return "", nil, err
	}
	if src, ok := r.fetched[canon]; ok {
		return src, nil, nil
	}

	scope, name, version, _ := parseRef(canon)
	if r.Fetch == nil {
		return "", nil, &diagnostic.ResolverError{Ref: ref, Err: localError("no fetcher configured for registry references")}
	}
	source, err := r.Fetch(ctx, scope, name, version)
	if err != nil {
		return "", nil, &diagnostic.ResolverError{Ref: ref, Err: err}
	}

	if err := r.verifyIntegrity(scope+"/"+name, source); err != nil {
		return "", nil, &diagnostic.ResolverError{Ref: ref, Err: err}
	}

	r.fetched[canon] = source
	return source, nil, nil
}

func (r *RegistryResolver) verifyIntegrity(key, source string) error {
	if r.Lock == nil {
		return nil
	}
	entry, ok := r.Lock.Modules[key]
	if !ok {
		return nil // unpinned module, nothing to verify against
	}
	want := strings.TrimPrefix(entry.Integrity, "sha256-")
	sum := sha256.Sum256([]byte(source))
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(want, got) {
		return fmt.Errorf("integrity mismatch for %s: lockfile has sha256-%s, fetched content hashes to sha256-%s", key, want, got)
	}
	return nil
}

// SatisfiesConstraint reports whether version satisfies a constraint of
// the form ">=1.2.0" (operators >=, <=, ==, > and <; a bare version is
// treated as >=), using golang.org/x/mod/semver for the comparison. Both version and constraint may omit the "v" prefix semver
// requires; it is added internally.
func SatisfiesConstraint(version, constraint string) (bool, error) {
	constraint = strings.TrimSpace(constraint)
	op := ">="
	rest := constraint
	for _, candidate := range []string{">=", "<=", "==", ">", "<"} {
		if strings.HasPrefix(constraint, candidate) {
			op = candidate
			rest = strings.TrimSpace(strings.TrimPrefix(constraint, candidate))
			break
		}
	}

	v := normalizeSemver(version)
	c := normalizeSemver(rest)
	if !semver.IsValid(v) {
		return false, fmt.Errorf("invalid version %q", version)
	}
	if !semver.IsValid(c) {
		return false, fmt.Errorf("invalid constraint version %q", rest)
	}

	cmp := semver.Compare(v, c)
	switch op {
	case ">=":
		return cmp >= 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case "<":
		return cmp < 0, nil
	case "==":
		return cmp == 0, nil
	default:
		return false, fmt.Errorf("unsupported constraint operator %q", op)
	}
}

func normalizeSemver(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
