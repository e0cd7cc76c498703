// Package chain prefers one secret backend and falls back to another when
// the first is unusable, typically pass with a file store behind it.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	filestore "github.com/bnema/deadlock-gc/internal/adapters/secrets/file"
	passstore "github.com/bnema/deadlock-gc/internal/adapters/secrets/pass"
	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
)

type Store struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
	log      zerolog.Logger
}

var _ ports.SecretStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

func NewStore(primary ports.SecretStore, fallback ports.SecretStore) *Store {
	store, err := NewStoreChecked(primary, fallback)
	if err != nil {
		panic(err)
	}

	return store
}

func NewStoreChecked(primary ports.SecretStore, fallback ports.SecretStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	return &Store{primary: primary, fallback: fallback, log: zerolog.Nop()}, nil
}

func NewPassFirstWithFileFallback(fileRoot string, log zerolog.Logger) (*Store, error) {
	store, err := NewStoreChecked(passstore.NewStore(), filestore.NewStore(fileRoot))
	if err != nil {
		return nil, err
	}
	store.log = log
	return store, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		return nil
	}
	if shouldSkipFallback(err) {
		return err
	}

	s.log.Warn().Err(err).Str("key", key).Msg("primary secret backend failed, writing to fallback")
	fallbackErr := s.fallback.Put(ctx, key, value)
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("primary backend put failed: %w; fallback backend put failed: %w", err, fallbackErr)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		return "", err
	}

	fallbackValue, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		s.log.Debug().Err(err).Str("key", key).Msg("secret read from fallback backend")
		return fallbackValue, nil
	}
	if errors.Is(err, domain.ErrSecretNotFound) && errors.Is(fallbackErr, domain.ErrSecretNotFound) {
		return "", fmt.Errorf("secret %q: %w", key, domain.ErrSecretNotFound)
	}

	return "", fmt.Errorf("primary backend get failed: %w; fallback backend get failed: %w", err, fallbackErr)
}

// Delete clears the key from both backends: a secret written while the
// primary was unusable lives only in the fallback.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if shouldSkipFallback(err) {
		return err
	}
	if errors.Is(err, domain.ErrSecretNotFound) {
		err = nil
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	if errors.Is(fallbackErr, domain.ErrSecretNotFound) {
		fallbackErr = nil
	}

	switch {
	case fallbackErr != nil && err != nil:
		return fmt.Errorf("primary backend delete failed: %w; fallback backend delete failed: %w", err, fallbackErr)
	case fallbackErr != nil:
		return fmt.Errorf("fallback backend delete failed: %w", fallbackErr)
	case err != nil:
		s.log.Debug().Err(err).Str("key", key).Msg("primary secret backend delete failed")
	}
	return nil
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
