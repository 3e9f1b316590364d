package version

import (
	"collab-docs-server/internal/diff"
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"context"
	defError "errors"
	"strings"

	"gorm.io/gorm"
)

// Options marks a version as a named snapshot, an auto-save, or a rollback.
type Options struct {
	IsSnapshot          bool
	SnapshotName        string
	SnapshotDescription string
	Tags                []string

	IsAutoSave bool

	RollbackOf     *uint64
	RollbackReason string
}

type Service interface {
	CreateVersion(ctx context.Context, docID uint64, content *string, title string, authorID uint64, opts Options) (*domain.DocumentVersion, error)
	ListVersions(ctx context.Context, docID uint64, page, pageSize int) (*PaginatedVersions, error)
	ListSnapshots(ctx context.Context, docID uint64) ([]domain.DocumentVersion, error)
	GetVersion(ctx context.Context, docID uint64, number uint64) (*domain.DocumentVersion, error)
	Rollback(ctx context.Context, docID uint64, target uint64, reason string, authorID uint64) (*domain.DocumentVersion, error)
	CompareVersions(ctx context.Context, docID uint64, from uint64, to uint64) (*VersionComparison, error)
}

type DocumentProvider interface {
	FindByID(ctx context.Context, id uint64) (*domain.Document, error)
}

type DefaultService struct {
	repository VersionRepository
	documents  DocumentProvider
	differ     *diff.Engine
}

func NewService(repository VersionRepository, documents DocumentProvider, differ *diff.Engine) Service {
	return &DefaultService{
		repository: repository,
		documents:  documents,
		differ:     differ,
	}
}

func (s *DefaultService) CreateVersion(ctx context.Context, docID uint64, content *string, title string, authorID uint64, opts Options) (*domain.DocumentVersion, error) {
	if content == nil {
		return nil, errors.UnprocessableEntity("Content is required", nil)
	}
	if opts.IsSnapshot && strings.TrimSpace(opts.SnapshotName) == "" {
		return nil, errors.UnprocessableEntity("Snapshot name can't be blank", nil)
	}

	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}

	if title == "" {
		title = doc.Title
	}

	// change summary is always relative to the immediately preceding
	// version; for version 1 the previous content is empty
	previous := doc.Content
	if doc.CurrentVersion == 0 {
		previous = ""
	}
	summary := s.differ.Summarize(previous, *content)
	stats := diff.ContentStats(*content)

	v := &domain.DocumentVersion{
		DocumentID:          docID,
		Content:             *content,
		Title:               title,
		AuthorID:            authorID,
		IsSnapshot:          opts.IsSnapshot,
		SnapshotName:        strings.TrimSpace(opts.SnapshotName),
		SnapshotDescription: opts.SnapshotDescription,
		Tags:                opts.Tags,
		IsAutoSave:          opts.IsAutoSave,
		RollbackOf:          opts.RollbackOf,
		RollbackReason:      opts.RollbackReason,
		Changes: domain.ChangeSummary{
			AddedLines:    summary.AddedLines,
			RemovedLines:  summary.RemovedLines,
			ModifiedLines: summary.ModifiedLines,
			TotalChanges:  summary.TotalChanges,
		},
		Stats: domain.ContentStats{
			WordCount:      stats.WordCount,
			CharacterCount: stats.CharacterCount,
			LineCount:      stats.LineCount,
		},
	}

	err = s.repository.Append(ctx, v)
	if defError.Is(err, gorm.ErrDuplicatedKey) {
		// sequence race with another writer: retry exactly once with a
		// freshly allocated number
		err = s.repository.Append(ctx, v)
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("Version sequence conflict, please resubmit", err)
		}
	}
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}

	return v, nil
}

type PaginatedVersions struct {
	Data []domain.DocumentVersion `json:"data"`
	Meta VersionsMeta             `json:"meta"`
}

func (s *DefaultService) ListVersions(ctx context.Context, docID uint64, page, pageSize int) (*PaginatedVersions, error) {
	if _, err := s.requireDocument(ctx, docID); err != nil {
		return nil, err
	}

	versions, meta, err := s.repository.ListByDocument(ctx, docID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &PaginatedVersions{Data: versions, Meta: meta}, nil
}

func (s *DefaultService) ListSnapshots(ctx context.Context, docID uint64) ([]domain.DocumentVersion, error) {
	if _, err := s.requireDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.repository.ListSnapshots(ctx, docID)
}

func (s *DefaultService) GetVersion(ctx context.Context, docID uint64, number uint64) (*domain.DocumentVersion, error) {
	v, err := s.repository.FindByNumber(ctx, docID, number)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}
	return v, nil
}

// Rollback restores the content of an older version by appending a new one.
// History is never truncated or rewritten.
func (s *DefaultService) Rollback(ctx context.Context, docID uint64, target uint64, reason string, authorID uint64) (*domain.DocumentVersion, error) {
	targetVersion, err := s.GetVersion(ctx, docID, target)
	if err != nil {
		return nil, err
	}

	return s.CreateVersion(ctx, docID, &targetVersion.Content, targetVersion.Title, authorID, Options{
		RollbackOf:     &targetVersion.Version,
		RollbackReason: reason,
	})
}

type VersionComparison struct {
	FromVersion uint64 `json:"from_version"`
	ToVersion   uint64 `json:"to_version"`
	diff.Comparison
}

// CompareVersions diffs two historical versions on demand; nothing is cached.
func (s *DefaultService) CompareVersions(ctx context.Context, docID uint64, from uint64, to uint64) (*VersionComparison, error) {
	fromVersion, err := s.GetVersion(ctx, docID, from)
	if err != nil {
		return nil, err
	}
	toVersion, err := s.GetVersion(ctx, docID, to)
	if err != nil {
		return nil, err
	}

	return &VersionComparison{
		FromVersion: fromVersion.Version,
		ToVersion:   toVersion.Version,
		Comparison:  s.differ.Compare(fromVersion.Content, toVersion.Content),
	}, nil
}

func (s *DefaultService) requireDocument(ctx context.Context, docID uint64) (*domain.Document, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}
	return doc, nil
}
