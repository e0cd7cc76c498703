// Package keyed persists an opaque token under one secret-store key.
package keyed

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
)

type Store struct {
	secrets ports.SecretStore
	key     string
}

var _ ports.TokenStore = (*Store)(nil)

func NewStore(secrets ports.SecretStore, key string) *Store {
	return &Store{secrets: secrets, key: key}
}

// ForAccount stores the account's resumable token under its guard ref.
func ForAccount(secrets ports.SecretStore, account domain.Account) *Store {
	key := account.Auth.GuardRef
	if key == "" {
		key = domain.GuardKey(account.ID)
	}
	return NewStore(secrets, key)
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	encoded, err := s.secrets.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("load token %q: %w", s.key, err)
	}

	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, domain.ErrTokenNotFound
	}

	token, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode token %q: %w", s.key, err)
	}

	return token, nil
}

func (s *Store) Save(ctx context.Context, token []byte) error {
	if err := s.secrets.Put(ctx, s.key, base64.StdEncoding.EncodeToString(token)); err != nil {
		return fmt.Errorf("save token %q: %w", s.key, err)
	}

	return nil
}
