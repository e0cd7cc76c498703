package ports

import (
	"context"

	"github.com/bnema/deadlock-gc/internal/domain"
)

// AuthExchange turns credentials (and an optional resumable token) into a session token.
// Implementations may block across several round trips while a user confirms out of band.
type AuthExchange interface {
	BeginSession(ctx context.Context, creds domain.Credentials, resumable []byte) (domain.AuthResult, error)
}
