package users

import (
	"context"
	"errors"
	"strings"

	"esign-backend/internal/shared/apperr"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// UpsertFromAuth persists the identity returned by the OAuth provider.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) error {
	if s == nil || s.Repo == nil {
		return errors.New("users service not configured")
	}
	user.ID = strings.TrimSpace(user.ID)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == "" || user.Email == "" {
		return apperr.Validation("user id and email are required")
	}
	return s.Repo.Upsert(ctx, user)
}

// Contact returns the email and display name used to notify a user.
func (s *Service) Contact(ctx context.Context, userID string) (email, name string, err error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return user.Email, user.DisplayName(), nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, apperr.Validation("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}
