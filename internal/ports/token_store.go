package ports

import "context"

// TokenStore persists the opaque resumable token for one identity.
// Load returns domain.ErrTokenNotFound when nothing has been saved yet.
type TokenStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, token []byte) error
}
