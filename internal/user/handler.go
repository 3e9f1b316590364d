package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes user directory lookups (used by the collaborator picker).
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, err := h.service.SearchUsers(c.Request.Context(), query, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}
