package keyed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	filestore "github.com/bnema/deadlock-gc/internal/adapters/secrets/file"
	"github.com/bnema/deadlock-gc/internal/domain"
	portmocks "github.com/bnema/deadlock-gc/internal/ports/mocks"
)

func TestStoreRoundTripsBinaryToken(t *testing.T) {
	t.Parallel()

	store := ForAccount(filestore.NewStore(t.TempDir()), domain.Account{ID: "1"})
	token := []byte{0x00, 0xff, '\n', 'g', 'u', 'a', 'r', 'd'}

	require.NoError(t, store.Save(context.Background(), token))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestStoreLoadMissingReturnsTokenNotFound(t *testing.T) {
	t.Parallel()

	store := ForAccount(filestore.NewStore(t.TempDir()), domain.Account{ID: "1"})

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestStoreUsesAccountGuardRef(t *testing.T) {
	t.Parallel()

	secrets := portmocks.NewMockSecretStore(t)
	store := ForAccount(secrets, domain.Account{ID: "1", Auth: domain.Auth{GuardRef: "deadlock://custom/guard"}})

	secrets.EXPECT().Put(mock.Anything, "deadlock://custom/guard", "AQID").Return(nil).Once()

	require.NoError(t, store.Save(context.Background(), []byte{1, 2, 3}))
}

func TestStoreLoadPropagatesBackendError(t *testing.T) {
	t.Parallel()

	secrets := portmocks.NewMockSecretStore(t)
	store := NewStore(secrets, "deadlock://1/guard_data")
	backendErr := errors.New("gpg agent unavailable")

	secrets.EXPECT().Get(mock.Anything, "deadlock://1/guard_data").Return("", backendErr).Once()

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, backendErr)
	assert.NotErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestStoreLoadRejectsCorruptValue(t *testing.T) {
	t.Parallel()

	secrets := portmocks.NewMockSecretStore(t)
	store := NewStore(secrets, "deadlock://1/guard_data")

	secrets.EXPECT().Get(mock.Anything, "deadlock://1/guard_data").Return("%%%not-base64", nil).Once()

	_, err := store.Load(context.Background())
	require.ErrorContains(t, err, "decode token")
}
