package iuserrepo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/user"
)

// ErrNotFound is returned when no user exists with the given id.
var ErrNotFound = errors.New("user not found")

// IUserRepository resolves customer contact info for intent creation.
type IUserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}
