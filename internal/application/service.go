package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
)

// Service manages stored accounts and their secrets.
type Service struct {
	repo  ports.AccountRepository
	store ports.SecretStore
	clock ports.Clock
}

func NewService(repo ports.AccountRepository, store ports.SecretStore, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		repo:  repo,
		store: store,
		clock: clock,
	}
}

func (s *Service) SetCredentials(ctx context.Context, cmd SetCredentialsCommand) error {
	if strings.TrimSpace(cmd.Password) == "" {
		return fmt.Errorf("password is required")
	}

	account, err := s.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("get account by id: %w", err)
		}
		account = domain.Account{ID: cmd.ID}
	}
	originalAccount := account

	secretKey := domain.PasswordKey(cmd.ID)
	account.Username = cmd.Username
	account.Auth = domain.Auth{PasswordRef: secretKey, GuardRef: domain.GuardKey(cmd.ID)}
	account.UpdatedAt = s.clock.Now()
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}

	restoreSecret, err := s.snapshotSecret(ctx, secretKey)
	if err != nil {
		return err
	}

	if err := s.store.Put(ctx, secretKey, cmd.Password); err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	if err := s.repo.Save(ctx, account); err != nil {
		if rollbackErr := restoreSecret(ctx); rollbackErr != nil {
			return fmt.Errorf("save account credentials and rollback stored password: %w", errors.Join(err, rollbackErr))
		}

		return fmt.Errorf("save account credentials: %w", err)
	}

	previousRef := originalAccount.Auth.PasswordRef
	if previousRef == "" || previousRef == secretKey {
		return nil
	}

	if err := s.store.Delete(ctx, previousRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		var rollbackErr error
		if restoreErr := s.repo.Save(ctx, originalAccount); restoreErr != nil {
			rollbackErr = errors.Join(rollbackErr, restoreErr)
		}
		if secretErr := restoreSecret(ctx); secretErr != nil {
			rollbackErr = errors.Join(rollbackErr, secretErr)
		}
		if rollbackErr != nil {
			return fmt.Errorf("delete previous password and rollback credentials update: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("delete previous password: %w", err)
	}

	return nil
}

// snapshotSecret returns a function that puts key back the way it is now.
func (s *Service) snapshotSecret(ctx context.Context, key string) (func(context.Context) error, error) {
	previous, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrSecretNotFound):
		return func(ctx context.Context) error {
			return s.store.Delete(ctx, key)
		}, nil
	case err != nil:
		return nil, fmt.Errorf("read current password: %w", err)
	default:
		return func(ctx context.Context) error {
			return s.store.Put(ctx, key, previous)
		}, nil
	}
}

func (s *Service) RemoveAccount(ctx context.Context, cmd RemoveAccountCommand) error {
	account, err := s.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	if err := s.repo.Delete(ctx, cmd.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	for _, secretRef := range uniqueSecretRefs(account.Auth.PasswordRef, account.Auth.GuardRef) {
		if err := s.store.Delete(ctx, secretRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			if restoreErr := s.repo.Save(ctx, account); restoreErr != nil {
				return fmt.Errorf("delete account secret and restore account: %w", errors.Join(err, restoreErr))
			}
			return fmt.Errorf("delete account secret: %w", err)
		}
	}

	return nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	return accounts, nil
}

// Credentials resolves the account and its stored password.
func (s *Service) Credentials(ctx context.Context, id domain.AccountID) (domain.Account, domain.Credentials, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, domain.Credentials{}, fmt.Errorf("get account by id: %w", err)
	}
	if account.Auth.PasswordRef == "" {
		return domain.Account{}, domain.Credentials{}, fmt.Errorf("account %s has no password: %w", id, domain.ErrSecretNotFound)
	}

	password, err := s.store.Get(ctx, account.Auth.PasswordRef)
	if err != nil {
		return domain.Account{}, domain.Credentials{}, fmt.Errorf("read password: %w", err)
	}

	return account, domain.Credentials{Username: account.Username, Password: password}, nil
}

// RecordSession stamps the account with the time its last session became ready.
func (s *Service) RecordSession(ctx context.Context, id domain.AccountID) error {
	if err := s.repo.MarkSession(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

func uniqueSecretRefs(secretRefs ...string) []string {
	result := make([]string, 0, len(secretRefs))
	seen := make(map[string]struct{}, len(secretRefs))

	for _, secretRef := range secretRefs {
		if secretRef == "" {
			continue
		}
		if _, ok := seen[secretRef]; ok {
			continue
		}

		seen[secretRef] = struct{}{}
		result = append(result, secretRef)
	}

	return result
}
