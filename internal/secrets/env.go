// internal/secrets/env.go
// Package secrets provides scoped access to deploy credentials.
//
// Secrets follow a scoped-acquisition model: fetched when the consuming
// step starts, handed to the subprocess environment only, and released
// when the step ends. They are never logged and never written to disk.
package secrets

import (
	"context"
	"fmt"
	"os"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
)

// EnvSource reads secrets from the process environment, the injection
// point used by CI secret stores.
type EnvSource struct{}

// NewEnvSource creates an environment-backed secret source.
func NewEnvSource() *EnvSource {
	return &EnvSource{}
}

// Acquire implements ports.SecretSource. The release func is a no-op
// here: Go strings are immutable, so the returned value cannot be wiped
// in place, and the environment itself is owned by the caller's runner.
// Scoping comes from the contract, not from zeroing memory.
func (s *EnvSource) Acquire(_ context.Context, name string) (string, ports.ReleaseFunc, error) {
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", nil, fmt.Errorf("%w: %s", domain.ErrSecretMissing, name)
	}
	return val, func() {}, nil
}

// Static is a fixed-value secret source for tests.
type Static map[string]string

// Acquire implements ports.SecretSource.
func (s Static) Acquire(_ context.Context, name string) (string, ports.ReleaseFunc, error) {
	val, ok := s[name]
	if !ok || val == "" {
		return "", nil, fmt.Errorf("%w: %s", domain.ErrSecretMissing, name)
	}
	return val, func() {}, nil
}
