package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/internal/service"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/response"
)

type attendanceService interface {
	MarkOrEditAttendance(ctx context.Context, userID string, req service.MarkAttendanceRequest) (*service.MarkAttendanceResponse, error)
	DayRecord(ctx context.Context, userID, dateKey string) (*models.DailyRecord, error)
}

type historyReader interface {
	History(ctx context.Context, userID string, filter models.HistoryFilter) ([]models.AttendanceEntryRow, int, error)
}

type snapshotSubscriber interface {
	SubscribeDaySnapshots(ctx context.Context, userID, dateKey string) (<-chan models.DailyRecord, func(), error)
}

// AttendanceHandler wires the ledger to HTTP endpoints.
type AttendanceHandler struct {
	service    attendanceService
	history    historyReader
	subscriber snapshotSubscriber
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService, history historyReader, subscriber snapshotSubscriber) *AttendanceHandler {
	return &AttendanceHandler{service: svc, history: history, subscriber: subscriber}
}

// Mark godoc
// @Summary Mark or edit attendance for one subject on one date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.MarkOrEditAttendance(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Day godoc
// @Summary Get the full attendance record for one date
// @Tags Attendance
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/{date} [get]
func (h *AttendanceHandler) Day(c *gin.Context) {
	record, err := h.service.DayRecord(c.Request.Context(), userIDFromContext(c), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// History godoc
// @Summary List attendance entries, newest first
// @Tags Attendance
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == "" {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}
	filter := models.HistoryFilter{
		From:     c.Query("from"),
		To:       c.Query("to"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 0),
	}
	rows, total, err := h.history.History(c.Request.Context(), userID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: len(rows), TotalCount: total}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Stream godoc
// @Summary Subscribe to live full-day snapshots for one date
// @Tags Attendance
// @Produce text/event-stream
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200
// @Router /attendance/{date}/stream [get]
func (h *AttendanceHandler) Stream(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == "" {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}
	dateKey := c.Param("date")
	if _, err := models.ParseDateKey(dateKey); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD"))
		return
	}

	snapshots, cancel, err := h.subscriber.SubscribeDaySnapshots(c.Request.Context(), userID, dateKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	// The first event is always the current state, so a reconnecting
	// client never renders stale data while waiting for a change.
	if record, err := h.service.DayRecord(c.Request.Context(), userID, dateKey); err == nil {
		writeSnapshotEvent(c.Writer, record)
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case record, ok := <-snapshots:
			if !ok {
				return false
			}
			writeSnapshotEvent(w, &record)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeSnapshotEvent(w io.Writer, record *models.DailyRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
}
