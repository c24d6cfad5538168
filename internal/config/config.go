// Package config loads and validates mlld-config.json / mlld-lock.json
// (spec §6.4): project security policy, policy imports, and per-module
// lockfile integrity entries. Both files may also be authored as YAML,
// sharing the same schema.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// URLPolicy restricts which remote hosts `/import` and alligator-path URL
// loads may reach.
type URLPolicy struct {
	AllowedDomains []string `json:"allowedDomains,omitempty" yaml:"allowedDomains,omitempty"`
	BlockedDomains []string `json:"blockedDomains,omitempty" yaml:"blockedDomains,omitempty"`
}

// SecurityConfig is mlld-config.json's `security` block.
type SecurityConfig struct {
	AllowGuardBypass bool      `json:"allowGuardBypass" yaml:"allowGuardBypass"`
	URL              URLPolicy `json:"url" yaml:"url"`
}

// ModuleConfig pins how a named module dependency resolves.
type ModuleConfig struct {
	Resolver string `json:"resolver,omitempty" yaml:"resolver,omitempty"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Config is the parsed, validated shape of mlld-config.json.
type Config struct {
	ProjectName       string                  `json:"projectName" yaml:"projectName"`
	Security          SecurityConfig          `json:"security" yaml:"security"`
	PolicyImports     []string                `json:"policyImports,omitempty" yaml:"policyImports,omitempty"`
	PolicyEnvironment map[string]interface{}  `json:"policyEnvironment,omitempty" yaml:"policyEnvironment,omitempty"`
	Modules           map[string]ModuleConfig `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// LockSecurity is mlld-lock.json's `security` block: the env allowlist
// `@input` may read from (spec §6.4: "only MLLD_-prefixed vars").
type LockSecurity struct {
	AllowedEnv []string `json:"allowedEnv,omitempty" yaml:"allowedEnv,omitempty"`
}

// ModuleLock is one resolved-and-pinned module entry.
type ModuleLock struct {
	Version   string `json:"version" yaml:"version"`
	Integrity string `json:"integrity" yaml:"integrity"`
}

// Lockfile is the parsed, validated shape of mlld-lock.json.
type Lockfile struct {
	Security LockSecurity          `json:"security" yaml:"security"`
	Modules  map[string]ModuleLock `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// decodeFile reads path and unmarshals it into a generic JSON-shaped value
// (map[string]interface{}, for schema validation) and, via a second
// json.Marshal/Unmarshal round trip, into dest. YAML is accepted
// transparently by extension — mlld-config.json is read before any
// internal/ports.FileSystem exists (this *is* how ProjectDir gets
// derived), so plain os file I/O is the only option here, not a
// simplification of the port boundary.
func decodeFile(path string, dest interface{}) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var generic map[string]interface{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("config: parsing YAML %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("config: parsing JSON %s: %w", path, err)
		}
	}

	// Re-marshal the generic form to populate dest, rather than decoding
	// raw twice with two different unmarshalers, so YAML- and JSON-
	// authored files go through identical struct population.
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("config: normalizing %s: %w", path, err)
	}
	if err := json.Unmarshal(normalized, dest); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return generic, nil
}

// Load reads and schema-validates mlld-config.json (or a YAML file with
// the same shape) at path.
func Load(path string) (*Config, error) {
	var cfg Config
	generic, err := decodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(generic); err != nil {
		return nil, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}
	return &cfg, nil
}

// LoadLockfile reads and schema-validates mlld-lock.json.
func LoadLockfile(path string) (*Lockfile, error) {
	var lock Lockfile
	generic, err := decodeFile(path, &lock)
	if err != nil {
		return nil, err
	}
	if err := validateLockfile(generic); err != nil {
		return nil, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}
	return &lock, nil
}
