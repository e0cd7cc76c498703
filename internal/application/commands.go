package application

import "github.com/bnema/deadlock-gc/internal/domain"

type SetCredentialsCommand struct {
	ID       domain.AccountID
	Username string
	Password string
}

type RemoveAccountCommand struct {
	ID domain.AccountID
}
