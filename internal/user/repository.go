package user

import (
	"collab-docs-server/internal/domain"
	"context"

	"gorm.io/gorm"
)

// UserRepository reads the user directory. Accounts are created and managed
// by the platform's auth service; this side only looks them up.
type UserRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.User, error)
	Search(ctx context.Context, query string, limit int) ([]domain.User, error)
}

type UserRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new user repository
func NewRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) Search(ctx context.Context, query string, limit int) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("name ILIKE ? OR email ILIKE ?", "%"+query+"%", "%"+query+"%").
		Limit(limit).
		Find(&users).Error
	return users, err
}
