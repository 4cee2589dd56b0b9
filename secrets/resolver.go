/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/

// Package secrets resolves logical secret names to opaque values. The
// encryption facade looks up kms_credentials, kms_keyring and kms_app_secret
// through a Resolver without caring where they live.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Logical names the facade resolves.
const (
	NameCredentials = "kms_credentials"
	NameKeyRing     = "kms_keyring"
	NameAppSecret   = "kms_app_secret"
)

// ErrNotFound reports that the resolver holds no value for a logical name.
var ErrNotFound = errors.New("secret not found")

// Resolver maps a logical secret name to an opaque value.
type Resolver interface {
	Get(ctx context.Context, name string) (string, error)
}

// Env resolves logical names against environment variables, upper-cased:
// kms_credentials reads KMS_CREDENTIALS.
type Env struct{}

func (Env) Get(_ context.Context, name string) (string, error) {
	value, ok := os.LookupEnv(strings.ToUpper(name))
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}

// File resolves logical names from a flat JSON object on disk. The file is
// re-read on every lookup so an operator can fix a bad secret without a
// restart.
type File struct {
	Path string
}

func (f File) Get(_ context.Context, name string) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("error reading secrets file %v: %v", f.Path, err)
	}
	values := make(map[string]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return "", fmt.Errorf("error parsing secrets file %v: %v", f.Path, err)
	}
	value, ok := values[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}

// Static resolves from an in-memory map. Useful for tests and for hosts that
// already hold the secrets.
type Static map[string]string

func (s Static) Get(_ context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}
