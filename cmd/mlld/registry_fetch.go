package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mlld-lang/mlld/internal/resolver"
)

const defaultRegistryBaseURL = "https://registry.mlld.dev"

// httpRegistryFetcher returns a resolver.Fetcher that pulls module source
// from the public registry over plain net/http — the same request idiom
// as this pack's HTTP-based LLM providers, just pointed at a module
// registry path instead of a chat completions endpoint. The base URL is
// overridable via MLLD_REGISTRY_URL for self-hosted registries.
func httpRegistryFetcher() resolver.Fetcher {
	base := os.Getenv("MLLD_REGISTRY_URL")
	if base == "" {
		base = defaultRegistryBaseURL
	}
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, scope, name, version string) (string, error) {
		url := fmt.Sprintf("%s/%s/%s/%s", base, scope, name, version)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("mlld: fetching @%s/%s@%s: %w", scope, name, version, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("mlld: fetching @%s/%s@%s: registry returned %s", scope, name, version, resp.Status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("mlld: reading @%s/%s@%s: %w", scope, name, version, err)
		}
		return string(body), nil
	}
}
