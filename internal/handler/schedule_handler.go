package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/internal/service"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/response"
)

type scheduleService interface {
	ForDate(ctx context.Context, userID, collegeID, classID, dateKey string) (*service.DaySchedule, error)
}

// ScheduleHandler serves the class routine for a date.
type ScheduleHandler struct {
	schedule scheduleService
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(schedule scheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

// ForDate godoc
// @Summary Scheduled classes for a date, with catalog fallback
// @Tags Schedule
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD). Defaults to today"
// @Success 200 {object} response.Envelope
// @Router /schedule [get]
func (h *ScheduleHandler) ForDate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}
	dateKey := strings.TrimSpace(c.Query("date"))
	if dateKey == "" {
		dateKey = time.Now().UTC().Format(models.DateKeyLayout)
	}
	schedule, err := h.schedule.ForDate(c.Request.Context(), claims.UserID, claims.CollegeID, claims.ClassID, dateKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}
