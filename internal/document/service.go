package document

import (
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"collab-docs-server/internal/version"
	"collab-docs-server/internal/worker"
	"collab-docs-server/redis"
	"context"
	defError "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type CreateDocumentInput struct {
	Title      string
	Content    string
	Visibility domain.Visibility
	RoomID     *uint64
}

type UpdateDocumentInput struct {
	Title      *string
	Content    *string
	Visibility *domain.Visibility
}

type Service interface {
	CreateDocument(ctx context.Context, ident domain.Identity, input CreateDocumentInput) (*domain.Document, error)
	GetDocument(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error)
	ListUserDocuments(ctx context.Context, userID uint64, page, pageSize int) (*PaginatedDocuments, error)
	ListPublicDocuments(ctx context.Context, page, pageSize int) (*PaginatedDocuments, error)
	ListRoomDocuments(ctx context.Context, roomID uint64) ([]domain.Document, error)
	UpdateDocument(ctx context.Context, docID uint64, ident domain.Identity, input UpdateDocumentInput) (*domain.Document, error)
	DeleteDocument(ctx context.Context, docID uint64, ident domain.Identity) error
	ListCollaborators(ctx context.Context, docID uint64, ident domain.Identity) ([]DocumentCollaboratorDTO, error)
	AddCollaborator(ctx context.Context, docID uint64, ident domain.Identity, targetUserID uint64, role string) (*DocumentCollaboratorDTO, error)
	RemoveCollaborator(ctx context.Context, docID uint64, ident domain.Identity, targetUserID uint64) error

	AuthorizeView(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error)
	AuthorizeEdit(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error)
}

type UserProvider interface {
	GetUserByID(ctx context.Context, id uint64) (*domain.User, error)
}

type DefaultService struct {
	repository DocumentRepository
	versions   version.Service
	users      UserProvider
	cache      *redis.Cache
	pool       *worker.WorkerPool
}

func NewService(
	repository DocumentRepository,
	versions version.Service,
	users UserProvider,
	cache *redis.Cache,
	pool *worker.WorkerPool,
) Service {
	return &DefaultService{
		repository: repository,
		versions:   versions,
		users:      users,
		cache:      cache,
		pool:       pool,
	}
}

// CreateDocument persists the document row and its initial version. The
// document starts at version 0 and the initial content lands as version 1,
// so the gapless sequence invariant holds from the first row on.
func (s *DefaultService) CreateDocument(ctx context.Context, ident domain.Identity, input CreateDocumentInput) (*domain.Document, error) {
	if input.Visibility == "" {
		input.Visibility = domain.VisibilityPrivate
	}
	if input.Visibility != domain.VisibilityPrivate && input.Visibility != domain.VisibilityPublic {
		return nil, errors.UnprocessableEntity("Visibility must be private or public", nil)
	}

	doc := &domain.Document{
		Title:      input.Title,
		Visibility: input.Visibility,
		RoomID:     input.RoomID,
	}
	if err := s.repository.Create(ctx, ident.UserID, doc); err != nil {
		return nil, err
	}

	v, err := s.versions.CreateVersion(ctx, doc.ID, &input.Content, input.Title, ident.UserID, version.Options{})
	if err != nil {
		return nil, err
	}
	doc.Content = v.Content
	doc.CurrentVersion = v.Version

	s.bumpListCache(ident.UserID)
	return doc, nil
}

func (s *DefaultService) GetDocument(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	return s.AuthorizeView(ctx, docID, ident)
}

type PaginatedDocuments struct {
	Data []DocumentRow `json:"data"`
	Meta DocumentsMeta `json:"meta"`
}

func (s *DefaultService) ListUserDocuments(ctx context.Context, userID uint64, page, pageSize int) (*PaginatedDocuments, error) {
	// Versioned cache key: bumping the user's version invalidates every page
	versionKey := fmt.Sprintf("user:%d:docs:version", userID)
	v := s.cache.GetVersion(ctx, versionKey)

	cacheKey := fmt.Sprintf("docs:u:%d:v:%d:p:%d:ps:%d", userID, v, page, pageSize)

	var result PaginatedDocuments
	found, _ := s.cache.Get(ctx, cacheKey, &result)
	if found {
		return &result, nil
	}

	rows, meta, err := s.repository.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	result = PaginatedDocuments{Data: rows, Meta: meta}

	s.pool.Submit(func(ctx context.Context) error {
		return s.cache.Set(ctx, cacheKey, result, 24*time.Hour)
	})

	return &result, nil
}

func (s *DefaultService) ListPublicDocuments(ctx context.Context, page, pageSize int) (*PaginatedDocuments, error) {
	rows, meta, err := s.repository.ListPublic(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &PaginatedDocuments{Data: rows, Meta: meta}, nil
}

// ListRoomDocuments serves the chat platform's internal lookup of documents
// attached to a room. Trust comes from the internal-secret middleware, so no
// per-user authorization applies here.
func (s *DefaultService) ListRoomDocuments(ctx context.Context, roomID uint64) ([]domain.Document, error) {
	return s.repository.ListByRoomID(ctx, roomID)
}

func (s *DefaultService) UpdateDocument(ctx context.Context, docID uint64, ident domain.Identity, input UpdateDocumentInput) (*domain.Document, error) {
	doc, err := s.AuthorizeEdit(ctx, docID, ident)
	if err != nil {
		return nil, err
	}

	// visibility is an ownership concern, not an editing one
	if input.Visibility != nil && doc.OwnerID != ident.UserID && !ident.IsAdmin {
		return nil, errors.Forbidden("Only owner can change visibility", nil)
	}
	if input.Visibility != nil &&
		*input.Visibility != domain.VisibilityPrivate && *input.Visibility != domain.VisibilityPublic {
		return nil, errors.UnprocessableEntity("Visibility must be private or public", nil)
	}
	if input.Title != nil && *input.Title == "" {
		return nil, errors.UnprocessableEntity("Title cannot be empty", nil)
	}

	if input.Title != nil || input.Visibility != nil {
		if err := s.repository.UpdateMeta(ctx, docID, input.Title, input.Visibility); err != nil {
			return nil, err
		}
	}

	// an explicit content update persists a version immediately, no debounce
	if input.Content != nil {
		title := doc.Title
		if input.Title != nil {
			title = *input.Title
		}
		if _, err := s.versions.CreateVersion(ctx, docID, input.Content, title, ident.UserID, version.Options{}); err != nil {
			return nil, err
		}
	}

	s.bumpListCache(ident.UserID)
	return s.repository.FindByID(ctx, docID)
}

func (s *DefaultService) DeleteDocument(ctx context.Context, docID uint64, ident domain.Identity) error {
	doc, err := s.findDocument(ctx, docID)
	if err != nil {
		return err
	}

	if doc.OwnerID != ident.UserID && !ident.IsAdmin {
		return errors.Forbidden("Only owner can delete document", nil)
	}

	if err := s.repository.Delete(ctx, docID); err != nil {
		return err
	}

	s.bumpListCache(ident.UserID)
	return nil
}

type UserDTO struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type DocumentCollaboratorDTO struct {
	User UserDTO `json:"user"`
	Role string  `json:"role"`
}

func (s *DefaultService) ListCollaborators(ctx context.Context, docID uint64, ident domain.Identity) ([]DocumentCollaboratorDTO, error) {
	if _, err := s.AuthorizeView(ctx, docID, ident); err != nil {
		return nil, err
	}

	rows, err := s.repository.ListCollaborators(ctx, docID)
	if err != nil {
		return nil, err
	}

	result := make([]DocumentCollaboratorDTO, 0, len(rows))
	for _, r := range rows {
		result = append(result, DocumentCollaboratorDTO{
			User: UserDTO{
				ID:    r.UserID,
				Name:  r.Name,
				Email: r.Email,
			},
			Role: r.Role,
		})
	}

	return result, nil
}

func (s *DefaultService) AddCollaborator(
	ctx context.Context,
	docID uint64,
	ident domain.Identity,
	targetUserID uint64,
	role string,
) (*DocumentCollaboratorDTO, error) {
	doc, err := s.findDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	if doc.OwnerID != ident.UserID && !ident.IsAdmin {
		return nil, errors.Forbidden("Only owner can add new collaborator!", nil)
	}

	// Prevent self-add
	if ident.UserID == targetUserID {
		return nil, errors.UnprocessableEntity("Can't add yourself!", nil)
	}

	// Ensure target user exists
	user, err := s.users.GetUserByID(ctx, targetUserID)
	if err != nil {
		return nil, errors.UnprocessableEntity("Can't find user!", err)
	}

	if err := s.repository.AddCollaborator(ctx, docID, targetUserID, role); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("User already added!", err)
		}
		return nil, err
	}

	s.bumpListCache(targetUserID)

	return &DocumentCollaboratorDTO{
		User: UserDTO{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
		Role: role,
	}, nil
}

func (s *DefaultService) RemoveCollaborator(
	ctx context.Context,
	docID uint64,
	ident domain.Identity,
	targetUserID uint64,
) error {
	doc, err := s.findDocument(ctx, docID)
	if err != nil {
		return err
	}

	if doc.OwnerID != ident.UserID && !ident.IsAdmin {
		return errors.Forbidden("Only owner can remove collaborator", nil)
	}

	// Prevent owner removing themselves
	if ident.UserID == targetUserID {
		return errors.UnprocessableEntity("Can't remove yourself", nil)
	}

	role, err := s.repository.GetUserRole(ctx, docID, targetUserID)
	if err != nil || role == "none" {
		return errors.UnprocessableEntity("Can't find collaborator", err)
	}

	if err := s.repository.RemoveCollaborator(ctx, docID, targetUserID); err != nil {
		return err
	}

	s.bumpListCache(targetUserID)
	return nil
}

// AuthorizeView checks document visibility: private documents are visible
// only to the owner, collaborators, and admins; public documents to everyone.
func (s *DefaultService) AuthorizeView(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	doc, err := s.findDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	if doc.Visibility == domain.VisibilityPublic || ident.IsAdmin || doc.OwnerID == ident.UserID {
		return doc, nil
	}

	role, err := s.repository.GetUserRole(ctx, docID, ident.UserID)
	if err == nil && role != "none" {
		return doc, nil
	}

	return nil, errors.Forbidden("You don't have access to this document", err)
}

// AuthorizeEdit checks edit rights: owner, editor collaborators, and admins.
func (s *DefaultService) AuthorizeEdit(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	doc, err := s.findDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	if ident.IsAdmin || doc.OwnerID == ident.UserID {
		return doc, nil
	}

	role, err := s.repository.GetUserRole(ctx, docID, ident.UserID)
	if err == nil && (role == "owner" || role == "editor") {
		return doc, nil
	}

	return nil, errors.Forbidden("You don't have edit access to this document", err)
}

func (s *DefaultService) findDocument(ctx context.Context, docID uint64) (*domain.Document, error) {
	doc, err := s.repository.FindByID(ctx, docID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}
	return doc, nil
}

func (s *DefaultService) bumpListCache(userID uint64) {
	s.pool.Submit(func(ctx context.Context) error {
		versionKey := fmt.Sprintf("user:%d:docs:version", userID)
		s.cache.IncrementVersion(ctx, versionKey)
		return nil
	})
}
