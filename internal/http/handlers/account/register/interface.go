package register

import (
	"context"

	"github.com/magabrotheeeer/account-service/internal/services/account"
)

// Service описывает бизнес-логику регистрации.
type Service interface {
	Register(ctx context.Context, username, email, password string) (account.RegisterResult, error)
}
