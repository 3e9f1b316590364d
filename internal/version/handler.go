package version

import (
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"collab-docs-server/internal/middleware"
	"collab-docs-server/internal/utils"
	"context"
	defError "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DocumentAccess is the visibility/edit check delegated to the document
// subsystem.
type DocumentAccess interface {
	AuthorizeView(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error)
}

// SessionGateway routes snapshot and rollback requests through the live
// session manager, so an active session's in-memory state stays in step
// with what gets persisted.
type SessionGateway interface {
	RequestSnapshot(ctx context.Context, docID uint64, ident domain.Identity, name, description string, tags []string) (*domain.DocumentVersion, error)
	RequestRollback(ctx context.Context, docID uint64, ident domain.Identity, target uint64, reason string) (*domain.DocumentVersion, error)
}

type Handler struct {
	service  Service
	access   DocumentAccess
	sessions SessionGateway
}

func NewHandler(service Service, access DocumentAccess, sessions SessionGateway) *Handler {
	return &Handler{service: service, access: access, sessions: sessions}
}

func (h *Handler) ListVersions(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	ident := middleware.IdentityFrom(c)
	if _, err := h.access.AuthorizeView(c.Request.Context(), docID, ident); err != nil {
		c.Error(err)
		return
	}

	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.ListVersions(c.Request.Context(), docID, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListSnapshots(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	ident := middleware.IdentityFrom(c)
	if _, err := h.access.AuthorizeView(c.Request.Context(), docID, ident); err != nil {
		c.Error(err)
		return
	}

	snapshots, err := h.service.ListSnapshots(c.Request.Context(), docID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshots})
}

func (h *Handler) ShowVersion(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}
	number, err := utils.ParseIDParam(c, "version")
	if err != nil {
		c.Error(errors.BadRequest("Invalid version number", err))
		return
	}

	ident := middleware.IdentityFrom(c)
	if _, err := h.access.AuthorizeView(c.Request.Context(), docID, ident); err != nil {
		c.Error(err)
		return
	}

	v, err := h.service.GetVersion(c.Request.Context(), docID, number)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (h *Handler) Compare(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}
	from, err := utils.ParseIDQuery(c, "from")
	if err != nil {
		c.Error(errors.BadRequest("Invalid from version", err))
		return
	}
	to, err := utils.ParseIDQuery(c, "to")
	if err != nil {
		c.Error(errors.BadRequest("Invalid to version", err))
		return
	}

	ident := middleware.IdentityFrom(c)
	if _, err := h.access.AuthorizeView(c.Request.Context(), docID, ident); err != nil {
		c.Error(err)
		return
	}

	result, err := h.service.CompareVersions(c.Request.Context(), docID, from, to)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type CreateSnapshotRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=255"`
	Description string   `json:"description" binding:"max=1000"`
	Tags        []string `json:"tags"`
}

func (h *Handler) CreateSnapshot(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	var req CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	ident := middleware.IdentityFrom(c)
	v, err := h.sessions.RequestSnapshot(
		c.Request.Context(),
		docID,
		ident,
		req.Name,
		req.Description,
		req.Tags,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

type RollbackRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

func (h *Handler) Rollback(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}
	target, err := utils.ParseIDParam(c, "version")
	if err != nil {
		c.Error(errors.BadRequest("Invalid version number", err))
		return
	}

	// The body is optional, an empty request rolls back without a reason.
	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil && !defError.Is(err, io.EOF) {
		c.Error(errors.NewValidationError(err))
		return
	}

	ident := middleware.IdentityFrom(c)
	v, err := h.sessions.RequestRollback(c.Request.Context(), docID, ident, target, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, v)
}
