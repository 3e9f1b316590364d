package document

import (
	"collab-docs-server/internal/domain"
	"context"
	"time"

	"gorm.io/gorm"
)

type DocumentRepository interface {
	Create(ctx context.Context, ownerID uint64, document *domain.Document) error
	FindByID(ctx context.Context, id uint64) (*domain.Document, error)
	ListByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]DocumentRow, DocumentsMeta, error)
	ListPublic(ctx context.Context, page, pageSize int) ([]DocumentRow, DocumentsMeta, error)
	ListByRoomID(ctx context.Context, roomID uint64) ([]domain.Document, error)
	UpdateMeta(ctx context.Context, docID uint64, title *string, visibility *domain.Visibility) error
	Delete(ctx context.Context, docID uint64) error
	GetUserRole(ctx context.Context, docID uint64, userID uint64) (string, error)
	AddCollaborator(ctx context.Context, docID uint64, userID uint64, role string) error
	RemoveCollaborator(ctx context.Context, docID uint64, userID uint64) error
	ListCollaborators(ctx context.Context, docID uint64) ([]CollaboratorRow, error)
}

type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new document repository
func NewRepository(db *gorm.DB) DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

type DocumentsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

// DocumentRow is a list row joined with the caller's role and owner name.
type DocumentRow struct {
	ID             uint64            `json:"id"`
	Title          string            `json:"title"`
	CurrentVersion uint64            `json:"current_version"`
	Visibility     domain.Visibility `json:"visibility"`
	RoomID         *uint64           `json:"room_id,omitempty"`
	OwnerID        uint64            `json:"owner_id"`
	OwnerName      string            `json:"owner_name"`
	Role           string            `json:"role"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type CollaboratorRow struct {
	UserID uint64 `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, ownerID uint64, document *domain.Document) error {
	now := time.Now().UTC() // Use UTC for consistency
	document.OwnerID = ownerID
	document.CreatedAt = now
	document.UpdatedAt = now
	document.Collaborators = []domain.DocumentCollaborator{
		{
			UserID:  ownerID,
			Role:    "owner",
			AddedAt: now,
		},
	}
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *DocumentRepositoryImpl) FindByID(ctx context.Context, id uint64) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepositoryImpl) ListByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]DocumentRow, DocumentsMeta, error) {
	var rows []DocumentRow
	var totalRecords int64

	base := r.db.WithContext(ctx).Model(&domain.Document{}).
		Joins("JOIN document_collaborators dc ON dc.document_id = documents.id AND dc.user_id = ?", userID)

	if err := base.Count(&totalRecords).Error; err != nil {
		return rows, DocumentsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := base.
		Joins("JOIN users u ON u.id = documents.owner_id").
		Select("documents.*, dc.role AS role, u.name AS owner_name").
		Order("documents.updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Scan(&rows).Error

	return rows, paginate(totalRecords, page, pageSize), err
}

func (r *DocumentRepositoryImpl) ListPublic(ctx context.Context, page, pageSize int) ([]DocumentRow, DocumentsMeta, error) {
	var rows []DocumentRow
	var totalRecords int64

	base := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("documents.visibility = ?", domain.VisibilityPublic)

	if err := base.Count(&totalRecords).Error; err != nil {
		return rows, DocumentsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := base.
		Joins("JOIN users u ON u.id = documents.owner_id").
		Select("documents.*, u.name AS owner_name").
		Order("documents.updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Scan(&rows).Error

	return rows, paginate(totalRecords, page, pageSize), err
}

func (r *DocumentRepositoryImpl) ListByRoomID(ctx context.Context, roomID uint64) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("updated_at DESC").
		Find(&docs).Error
	return docs, err
}

func paginate(total int64, page, pageSize int) DocumentsMeta {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return DocumentsMeta{
		Total:       total,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}
}

func (r *DocumentRepositoryImpl) UpdateMeta(ctx context.Context, docID uint64, title *string, visibility *domain.Visibility) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if title != nil {
		updates["title"] = *title
	}
	if visibility != nil {
		updates["visibility"] = *visibility
	}

	result := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("id = ?", docID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the document with its collaborators and version history.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, docID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&domain.DocumentVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&domain.DocumentCollaborator{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Document{}, docID).Error
	})
}

func (r *DocumentRepositoryImpl) GetUserRole(ctx context.Context, docID uint64, userID uint64) (string, error) {
	var role string
	err := r.db.WithContext(ctx).Model(&domain.DocumentCollaborator{}).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Select("role").
		Scan(&role).Error
	if err != nil || role == "" {
		return "none", err
	}

	return role, nil
}

func (r *DocumentRepositoryImpl) AddCollaborator(ctx context.Context, docID uint64, userID uint64, role string) error {
	return r.db.WithContext(ctx).Create(&domain.DocumentCollaborator{
		DocumentID: docID,
		UserID:     userID,
		Role:       role,
		AddedAt:    time.Now().UTC(),
	}).Error
}

func (r *DocumentRepositoryImpl) RemoveCollaborator(ctx context.Context, docID uint64, userID uint64) error {
	return r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Delete(&domain.DocumentCollaborator{}).Error
}

func (r *DocumentRepositoryImpl) ListCollaborators(ctx context.Context, docID uint64) ([]CollaboratorRow, error) {
	var rows []CollaboratorRow
	err := r.db.WithContext(ctx).Model(&domain.DocumentCollaborator{}).
		Joins("JOIN users u ON u.id = document_collaborators.user_id").
		Where("document_collaborators.document_id = ?", docID).
		Select("document_collaborators.user_id, document_collaborators.role, u.name, u.email").
		Order("document_collaborators.added_at ASC").
		Scan(&rows).Error
	return rows, err
}
