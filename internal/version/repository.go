package version

import (
	"collab-docs-server/internal/domain"
	"context"
	"time"

	"gorm.io/gorm"
)

type VersionRepository interface {
	// Append persists v with the next sequence number for its document and
	// keeps the document row (content, title, current_version) in sync.
	Append(ctx context.Context, v *domain.DocumentVersion) error
	ListByDocument(ctx context.Context, docID uint64, page, pageSize int) ([]domain.DocumentVersion, VersionsMeta, error)
	ListSnapshots(ctx context.Context, docID uint64) ([]domain.DocumentVersion, error)
	FindByNumber(ctx context.Context, docID uint64, number uint64) (*domain.DocumentVersion, error)
}

type VersionRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new version repository
func NewRepository(db *gorm.DB) VersionRepository {
	return &VersionRepositoryImpl{db: db}
}

type VersionsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

// Append allocates the next version number and inserts the version row in a
// single transaction. The sequence lives on the documents row, so the
// increment-and-append is atomic: two concurrent appends for one document
// serialize on the row lock taken by the UPDATE. The unique index on
// (document_id, version) backstops the invariant across instances.
func (r *VersionRepositoryImpl) Append(ctx context.Context, v *domain.DocumentVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var seq uint64
		if err := tx.Raw(`
			UPDATE documents
			SET current_version = current_version + 1,
			    content = ?,
			    title = ?,
			    updated_at = ?
			WHERE id = ?
			RETURNING current_version
		`, v.Content, v.Title, now, v.DocumentID).Scan(&seq).Error; err != nil {
			return err
		}

		if seq == 0 {
			return gorm.ErrRecordNotFound
		}

		v.Version = seq
		v.CreatedAt = now

		return tx.Create(v).Error
	})
}

func (r *VersionRepositoryImpl) ListByDocument(ctx context.Context, docID uint64, page, pageSize int) ([]domain.DocumentVersion, VersionsMeta, error) {
	var versions []domain.DocumentVersion
	var totalRecords int64

	if err := r.db.WithContext(ctx).Model(&domain.DocumentVersion{}).
		Where("document_id = ?", docID).
		Count(&totalRecords).Error; err != nil {
		return versions, VersionsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("version DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&versions).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return versions, VersionsMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *VersionRepositoryImpl) ListSnapshots(ctx context.Context, docID uint64) ([]domain.DocumentVersion, error) {
	var versions []domain.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND is_snapshot = ?", docID, true).
		Order("version DESC").
		Find(&versions).Error
	return versions, err
}

func (r *VersionRepositoryImpl) FindByNumber(ctx context.Context, docID uint64, number uint64) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND version = ?", docID, number).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}
