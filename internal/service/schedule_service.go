package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/attenza/attenza-api/internal/models"
	"github.com/attenza/attenza-api/pkg/config"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
)

type scheduleCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ScheduleService adapts the external routine provider: a master sheet
// mapping classes to routine sheets plus a version counter, and one
// routine sheet per class, both published as CSV. Routines are cached
// per class and invalidated when the master version moves on. A failed
// or empty provider response degrades to "every known subject, always
// scheduled" so marking attendance is never blocked.
type ScheduleService struct {
	cfg     config.ScheduleConfig
	client  *http.Client
	cache   scheduleCache
	catalog catalogReader
	logger  *zap.Logger
	metrics *MetricsService
}

// NewScheduleService constructs the schedule adapter.
func NewScheduleService(cfg config.ScheduleConfig, cache scheduleCache, catalog catalogReader, logger *zap.Logger, metrics *MetricsService) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		cache:   cache,
		catalog: catalog,
		logger:  logger,
		metrics: metrics,
	}
}

// DaySchedule is the provider response for one date.
type DaySchedule struct {
	Date     string               `json:"date"`
	Rows     []models.ScheduleRow `json:"rows"`
	Fallback bool                 `json:"fallback"`
}

// ForDate returns the schedule rows for the user's class on the given
// date. Fallback is true when the rows were synthesized from the
// subject catalog because the provider was unavailable.
func (s *ScheduleService) ForDate(ctx context.Context, userID, collegeID, classID, dateKey string) (*DaySchedule, error) {
	if userID == "" {
		return nil, appErrors.ErrNotAuthenticated
	}
	date, err := models.ParseDateKey(dateKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}

	rows, err := s.routineForDay(ctx, collegeID, classID, date.Weekday())
	if err != nil {
		s.logger.Warn("schedule provider unavailable, using catalog fallback",
			zap.String("class_id", classID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.IncProviderFallback()
		}
		fallbackRows, fbErr := s.fallbackRows(ctx, userID)
		if fbErr != nil {
			return nil, fbErr
		}
		return &DaySchedule{Date: dateKey, Rows: fallbackRows, Fallback: true}, nil
	}

	return &DaySchedule{Date: dateKey, Rows: rows}, nil
}

func (s *ScheduleService) routineForDay(ctx context.Context, collegeID, classID string, weekday time.Weekday) ([]models.ScheduleRow, error) {
	if s.cfg.MasterSheetURL == "" {
		return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, "no master sheet configured")
	}

	class, err := s.lookupClass(ctx, collegeID, classID)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("routine:%s", classID)
	var cached models.CachedRoutine
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached.Version == class.Version {
			if s.metrics != nil {
				s.metrics.IncCacheHit()
			}
			return cached.Days[strings.ToLower(weekday.String())], nil
		}
		if s.metrics != nil {
			s.metrics.IncCacheMiss()
		}
	}

	days, err := s.fetchRoutine(ctx, class.RoutineSheetID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		routine := models.CachedRoutine{Version: class.Version, Days: days}
		if err := s.cache.Set(ctx, cacheKey, routine, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache routine", zap.String("class_id", classID), zap.Error(err))
		}
	}

	return days[strings.ToLower(weekday.String())], nil
}

func (s *ScheduleService) lookupClass(ctx context.Context, collegeID, classID string) (*models.RoutineClass, error) {
	records, err := s.fetchCSV(ctx, s.cfg.MasterSheetURL)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		class := models.RoutineClass{
			CollegeID:      rec["college_id"],
			ClassLabel:     rec["class_label"],
			ClassID:        rec["class_id"],
			RoutineSheetID: rec["routine_sheet_id"],
			Version:        rec["version"],
		}
		if class.ClassID == classID && (collegeID == "" || class.CollegeID == collegeID) {
			return &class, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, fmt.Sprintf("class %s not in master sheet", classID))
}

func (s *ScheduleService) fetchRoutine(ctx context.Context, sheetID string) (map[string][]models.ScheduleRow, error) {
	template := s.cfg.RoutineURLTemplate
	if template == "" {
		template = "https://docs.google.com/spreadsheets/d/e/%s/pub?gid=0&single=true&output=csv"
	}
	records, err := s.fetchCSV(ctx, fmt.Sprintf(template, sheetID))
	if err != nil {
		return nil, err
	}

	days := make(map[string][]models.ScheduleRow)
	for _, rec := range records {
		day := strings.ToLower(strings.TrimSpace(rec["day"]))
		subject := strings.TrimSpace(rec["subject"])
		if day == "" || subject == "" {
			continue
		}
		days[day] = append(days[day], models.ScheduleRow{
			SubjectName: subject,
			StartTime:   strings.TrimSpace(rec["start_time"]),
			Room:        strings.TrimSpace(rec["room"]),
			Faculty:     strings.TrimSpace(rec["faculty"]),
		})
	}
	return days, nil
}

// fetchCSV downloads and parses a published CSV sheet into rows keyed
// by the header line.
func (s *ScheduleService) fetchCSV(ctx context.Context, url string) ([]map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "build provider request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "fetch provider sheet")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, fmt.Sprintf("provider returned %d", resp.StatusCode))
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "read provider header")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "read provider row")
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fallbackRows synthesizes an always-available slot per catalog subject.
func (s *ScheduleService) fallbackRows(ctx context.Context, userID string) ([]models.ScheduleRow, error) {
	entries, err := s.catalog.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make([]models.ScheduleRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, models.ScheduleRow{SubjectName: entry.Name})
	}
	return rows, nil
}
