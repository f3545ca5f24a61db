// Package credentials resolves the provider API key from an ordered
// chain of sources and owns the local secret store: the OS keychain on
// macOS, a permission-restricted file elsewhere.
package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/sanitize"
)

const (
	// Service is the keychain service name under which all vono
	// secrets are filed.
	Service = "vono"

	// AccountAPIKey holds the provider API key.
	AccountAPIKey = "openai_api_key"

	// AccountEncryptionKey holds the failed-recording encryption key.
	AccountEncryptionKey = "encryption_key"

	// accountAPIToken holds the bearer token minted for the local API.
	accountAPIToken = "api_token"

	// EnvAPIKey is the environment variable consulted last in the
	// resolution chain.
	EnvAPIKey = "VONO_OPENAI_API_KEY"

	// storedKeyName is the config-backend key that may carry a
	// manually persisted API key.
	storedKeyName = "openai.api_key"
)

// Keychain stores and retrieves named secrets. Get returns an empty
// string when the secret is absent; errors are reserved for real store
// failures.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// Store reads persisted configuration values. Config backends satisfy it.
type Store interface {
	GetString(key string) (string, bool, error)
}

// Source is one place an API key may live.
type Source interface {
	Name() string
	Lookup() (string, error)
}

// KeychainSource reads the provider key from the secret store.
type KeychainSource struct {
	Keychain Keychain
}

func (s *KeychainSource) Name() string { return "keychain" }

func (s *KeychainSource) Lookup() (string, error) {
	val, err := s.Keychain.Get(Service, AccountAPIKey)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(val), nil
}

// StoredSource reads a key persisted in the configuration backend.
type StoredSource struct {
	Store Store
}

func (s *StoredSource) Name() string { return "config" }

func (s *StoredSource) Lookup() (string, error) {
	val, ok, err := s.Store.GetString(storedKeyName)
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimSpace(val), nil
}

// EnvSource reads a key from the environment.
type EnvSource struct {
	Var string
}

func (s *EnvSource) Name() string { return "env" }

func (s *EnvSource) Lookup() (string, error) {
	return strings.TrimSpace(os.Getenv(s.Var)), nil
}

// DefaultSources returns the standard resolution chain: keychain first,
// then the config backend, then the environment.
func DefaultSources(kc Keychain, store Store) []Source {
	return []Source{
		&KeychainSource{Keychain: kc},
		&StoredSource{Store: store},
		&EnvSource{Var: EnvAPIKey},
	}
}

// Resolver walks a source chain until one yields a key.
type Resolver struct {
	sources []Source
}

// NewResolver creates a Resolver over the given sources, consulted in
// order on every Resolve call. Keys are never cached, so a key added
// mid-session is picked up by the next run.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Resolve returns the first non-empty key in the chain. A source that
// fails to read is logged and skipped. When every source comes up
// empty the error is terminal: no amount of retrying will conjure a key.
func (r *Resolver) Resolve() (string, error) {
	for _, src := range r.sources {
		val, err := src.Lookup()
		if err != nil {
			slog.Warn("credential source unreadable", "source", src.Name(), "error", sanitize.Error(err))
			continue
		}
		if val != "" {
			return val, nil
		}
	}
	return "", apperr.New(apperr.KindCredentialMissing,
		"no API key configured; run `vono key set <key>` or export "+EnvAPIKey)
}

// SetAPIKey stores the provider API key in the secret store.
func SetAPIKey(kc Keychain, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apperr.New(apperr.KindValidation, "API key must not be empty")
	}
	return kc.Set(Service, AccountAPIKey, value)
}

// GetAPIToken returns the bearer token protecting the local HTTP API,
// minting and persisting a random one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	tok, err := kc.Get(Service, accountAPIToken)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if tok != "" {
		return tok, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(Service, accountAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
