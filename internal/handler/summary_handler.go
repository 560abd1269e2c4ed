package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/internal/service"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/response"
)

type summaryService interface {
	Overall(ctx context.Context, userID string) (*service.Overview, error)
	Export(ctx context.Context, userID, format string) (*service.ExportResult, error)
	ResolveExport(token string) (string, error)
}

type periodService interface {
	ComputePeriodStats(ctx context.Context, userID, startKey, endKey string, knownSubjects []string) (*models.PeriodStats, error)
}

type reconcileService interface {
	Enqueue(userID string) (string, error)
	Reconcile(ctx context.Context, userID string) (*service.ReconcileReport, error)
}

// SummaryHandler exposes the summary, period and reconciliation endpoints.
type SummaryHandler struct {
	summaries summaryService
	periods   periodService
	reconcile reconcileService
	catalog   catalogService
}

// NewSummaryHandler constructs the handler.
func NewSummaryHandler(summaries summaryService, periods periodService, reconcile reconcileService, catalog catalogService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, periods: periods, reconcile: reconcile, catalog: catalog}
}

// Overall godoc
// @Summary Overall attendance summary including the imported baseline
// @Tags Summary
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /summary [get]
func (h *SummaryHandler) Overall(c *gin.Context) {
	overview, err := h.summaries.Overall(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// Period godoc
// @Summary Recompute attendance over an inclusive date range
// @Tags Summary
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /summary/period [get]
func (h *SummaryHandler) Period(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from and to are required"))
		return
	}
	userID := userIDFromContext(c)
	known, err := h.catalogSubjects(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.periods.ComputePeriodStats(c.Request.Context(), userID, from, to, known)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// catalogSubjects collects the user's catalog subject names so period
// stats can zero-fill subjects that never appear in the range.
func (h *SummaryHandler) catalogSubjects(ctx context.Context, userID string) ([]string, error) {
	entries, err := h.catalog.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

// Export godoc
// @Summary Render the overall summary as a downloadable artifact
// @Tags Summary
// @Produce json
// @Param format query string false "csv or pdf (default csv)"
// @Success 201 {object} response.Envelope
// @Router /summary/export [post]
func (h *SummaryHandler) Export(c *gin.Context) {
	result, err := h.summaries.Export(c.Request.Context(), userIDFromContext(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a previously exported artifact
// @Tags Summary
// @Produce octet-stream
// @Param token query string true "Signed export token"
// @Success 200
// @Router /summary/export/download [get]
func (h *SummaryHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, err := h.summaries.ResolveExport(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// Reconcile godoc
// @Summary Recompute full history and check it against the running summary
// @Tags Summary
// @Produce json
// @Param sync query bool false "Run inline and return the report"
// @Success 200 {object} response.Envelope
// @Router /summary/reconcile [post]
func (h *SummaryHandler) Reconcile(c *gin.Context) {
	userID := userIDFromContext(c)
	if c.Query("sync") == "true" {
		report, err := h.reconcile.Reconcile(c.Request.Context(), userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, report, nil)
		return
	}

	jobID, err := h.reconcile.Enqueue(userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": jobID}, nil)
}
