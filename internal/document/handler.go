package document

import (
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"collab-docs-server/internal/middleware"
	"collab-docs-server/internal/utils"
	defError "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionNotifier pushes a persisted content change into a live editing
// session, so connected clients do not keep broadcasting stale content.
type SessionNotifier interface {
	RefreshState(docID uint64, content, title string, version uint64)
}

type Handler struct {
	service  Service
	sessions SessionNotifier
}

func NewHandler(service Service, sessions SessionNotifier) *Handler {
	return &Handler{service: service, sessions: sessions}
}

type CreateDocumentRequest struct {
	Title      string  `json:"title" binding:"required,min=1,max=255"`
	Content    string  `json:"content"`
	Visibility string  `json:"visibility" binding:"omitempty,oneof=private public"`
	RoomID     *uint64 `json:"room_id"`
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateDocumentRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	ident := middleware.IdentityFrom(c)

	doc, err := h.service.CreateDocument(c.Request.Context(), ident, CreateDocumentInput{
		Title:      form.Title,
		Content:    form.Content,
		Visibility: domain.Visibility(form.Visibility),
		RoomID:     form.RoomID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ShowUserDocuments(c *gin.Context) {
	ident := middleware.IdentityFrom(c)

	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.ListUserDocuments(c.Request.Context(), ident.UserID, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ShowPublicDocuments(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.ListPublicDocuments(c.Request.Context(), page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ShowRoomDocuments lists the documents attached to a chat room. Served on
// the internal surface only.
func (h *Handler) ShowRoomDocuments(c *gin.Context) {
	roomID, err := utils.ParseIDParam(c, "roomId")
	if err != nil {
		c.Error(errors.BadRequest("Invalid room id", err))
		return
	}

	docs, err := h.service.ListRoomDocuments(c.Request.Context(), roomID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": docs})
}

func (h *Handler) ShowDocument(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	ident := middleware.IdentityFrom(c)

	doc, err := h.service.GetDocument(c.Request.Context(), docID, ident)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

type UpdateDocumentRequest struct {
	Title      *string `json:"title" binding:"omitempty,min=1,max=255"`
	Content    *string `json:"content"`
	Visibility *string `json:"visibility" binding:"omitempty,oneof=private public"`
}

func (h *Handler) Update(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	// All fields are optional, an empty body is a no-op update.
	var form UpdateDocumentRequest
	if err := c.ShouldBindJSON(&form); err != nil && !defError.Is(err, io.EOF) {
		c.Error(errors.NewValidationError(err))
		return
	}

	ident := middleware.IdentityFrom(c)

	input := UpdateDocumentInput{
		Title:   form.Title,
		Content: form.Content,
	}
	if form.Visibility != nil {
		v := domain.Visibility(*form.Visibility)
		input.Visibility = &v
	}

	doc, err := h.service.UpdateDocument(c.Request.Context(), docID, ident, input)
	if err != nil {
		c.Error(err)
		return
	}

	if form.Content != nil && h.sessions != nil {
		h.sessions.RefreshState(doc.ID, doc.Content, doc.Title, doc.CurrentVersion)
	}

	c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	ident := middleware.IdentityFrom(c)

	if err := h.service.DeleteDocument(c.Request.Context(), docID, ident); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListCollaborators(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	ident := middleware.IdentityFrom(c)

	result, err := h.service.ListCollaborators(c.Request.Context(), docID, ident)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type AddCollaboratorRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=editor viewer"`
}

func (h *Handler) AddCollaborator(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	var req AddCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	ident := middleware.IdentityFrom(c)

	result, err := h.service.AddCollaborator(
		c.Request.Context(),
		docID,
		ident,
		req.UserID,
		req.Role,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RemoveCollaborator(c *gin.Context) {
	docID, err := utils.ParseIDParam(c, "id")
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	targetUserID, err := utils.ParseIDParam(c, "userId")
	if err != nil {
		c.Error(errors.BadRequest("Invalid user id", err))
		return
	}

	ident := middleware.IdentityFrom(c)

	err = h.service.RemoveCollaborator(
		c.Request.Context(),
		docID,
		ident,
		targetUserID,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "collaborator removed",
	})
}
