package user

import (
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"context"
	defError "errors"

	"gorm.io/gorm"
)

// Service defines the read-only user directory consumed by the rest of the
// service: identity middleware, collaborator management, and presence.
type Service interface {
	GetUserByID(ctx context.Context, id uint64) (*domain.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error)
}

// DefaultService implements Service
type DefaultService struct {
	repository UserRepository
}

// NewService creates a new user service
func NewService(repository UserRepository) Service {
	return &DefaultService{repository: repository}
}

// GetUserByID gets a user by ID
func (s *DefaultService) GetUserByID(ctx context.Context, id uint64) (*domain.User, error) {
	user, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("User not found", err)
		}
		return nil, err
	}
	return user, nil
}

// SearchUsers finds active users by name or email fragment.
func (s *DefaultService) SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.repository.Search(ctx, query, limit)
}
