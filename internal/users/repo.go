package users

import (
	"context"

	"esign-backend/internal/shared/apperr"
)

var ErrNotFound = apperr.New(apperr.ErrNotFound, "not_found", "user not found")

type Repo interface {
	Upsert(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
}
