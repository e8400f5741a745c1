package bqetl

import (
	"context"
	"errors"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

// ErrSecretNotFound is returned when a secret does not exist or is empty.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider provides secrets such as API tokens by name.
type SecretProvider interface {
	Secret(ctx context.Context, name string) (string, error)
}

// SecretFunc adapts a function to SecretProvider.
type SecretFunc func(ctx context.Context, name string) (string, error)

// Secret implements SecretProvider.
func (f SecretFunc) Secret(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// EnvSecrets reads secrets from environment variables. A secret named
// "socrata-app-token" with Prefix "BQETL" is read from BQETL_SOCRATA_APP_TOKEN.
type EnvSecrets struct {
	Prefix string
}

// Secret implements SecretProvider.
func (e EnvSecrets) Secret(_ context.Context, name string) (string, error) {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	if e.Prefix != "" {
		key = e.Prefix + "_" + key
	}

	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", xerrors.Errorf("%s (%s): %w", name, key, ErrSecretNotFound)
	}

	return v, nil
}
