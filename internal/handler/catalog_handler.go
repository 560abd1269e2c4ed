package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/response"
)

type catalogService interface {
	List(ctx context.Context, userID string) ([]models.SubjectCatalogEntry, error)
}

// CatalogHandler serves the subject catalog.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List godoc
// @Summary List the user's subjects with their imported baseline
// @Tags Subjects
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *CatalogHandler) List(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == "" {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}
	entries, err := h.catalog.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
