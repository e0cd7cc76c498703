package ports

import (
	"context"
	"time"

	"github.com/bnema/deadlock-gc/internal/domain"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, account domain.Account) error
	Delete(ctx context.Context, id domain.AccountID) error
	MarkSession(ctx context.Context, id domain.AccountID, at time.Time) error
}
