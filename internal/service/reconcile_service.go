package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/jobs"
)

type recordBoundsReader interface {
	Bounds(ctx context.Context, userID string) (from, to time.Time, ok bool, err error)
}

type periodComputer interface {
	ComputePeriodStats(ctx context.Context, userID, startKey, endKey string, knownSubjects []string) (*models.PeriodStats, error)
}

// ReconcileService recomputes the full-history aggregate from raw
// records and checks it against the running summary. The two views are
// derived independently, so agreement here is the system's end-to-end
// consistency check.
type ReconcileService struct {
	records   recordBoundsReader
	summaries summaryReader
	periods   periodComputer
	logger    *zap.Logger
	metrics   *MetricsService
	queue     *jobs.Queue
}

// NewReconcileService constructs the service and its background queue.
func NewReconcileService(records recordBoundsReader, summaries summaryReader, periods periodComputer, logger *zap.Logger, metrics *MetricsService, cfg jobs.QueueConfig) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ReconcileService{
		records:   records,
		summaries: summaries,
		periods:   periods,
		logger:    logger,
		metrics:   metrics,
	}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("reconcile", svc.handleJob, cfg)
	return svc
}

// Start launches the queue workers.
func (s *ReconcileService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *ReconcileService) Stop() {
	s.queue.Stop()
}

// ReconcileReport captures one reconciliation outcome.
type ReconcileReport struct {
	UserID          string `json:"user_id"`
	CheckedFrom     string `json:"checked_from,omitempty"`
	CheckedTo       string `json:"checked_to,omitempty"`
	RecomputedTotal int    `json:"recomputed_total"`
	RecomputedAtt   int    `json:"recomputed_present"`
	SummaryTotal    int    `json:"summary_total"`
	SummaryPresent  int    `json:"summary_present"`
	Drift           bool   `json:"drift"`
}

// Enqueue schedules a reconciliation run for the user and returns the
// job id.
func (s *ReconcileService) Enqueue(userID string) (string, error) {
	if userID == "" {
		return "", appErrors.ErrNotAuthenticated
	}
	jobID := uuid.NewString()
	err := s.queue.Enqueue(jobs.Job{ID: jobID, Type: "reconcile", Payload: userID})
	if err != nil {
		return "", fmt.Errorf("enqueue reconciliation: %w", err)
	}
	return jobID, nil
}

func (s *ReconcileService) handleJob(ctx context.Context, job jobs.Job) error {
	userID, ok := job.Payload.(string)
	if !ok || userID == "" {
		s.logger.Error("reconcile job carried no user id", zap.String("job_id", job.ID))
		return nil
	}
	report, err := s.Reconcile(ctx, userID)
	if err != nil {
		return err
	}
	if report.Drift {
		s.logger.Error("ledger summary drifted from raw records",
			zap.String("user_id", userID),
			zap.Int("recomputed_total", report.RecomputedTotal),
			zap.Int("summary_total", report.SummaryTotal),
			zap.Int("recomputed_present", report.RecomputedAtt),
			zap.Int("summary_present", report.SummaryPresent))
	}
	return nil
}

// Reconcile recomputes the aggregate over the user's entire history and
// compares it with the stored tracked totals. Baseline fields are
// outside the comparison; the aggregator never sees them.
func (s *ReconcileService) Reconcile(ctx context.Context, userID string) (*ReconcileReport, error) {
	if userID == "" {
		return nil, appErrors.ErrNotAuthenticated
	}

	summary, err := s.summaries.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		UserID:         userID,
		SummaryTotal:   summary.TrackedTotal,
		SummaryPresent: summary.TrackedPresent,
	}

	from, to, hasRecords, err := s.records.Bounds(ctx, userID)
	if err != nil {
		return nil, err
	}
	if hasRecords {
		report.CheckedFrom = from.Format(models.DateKeyLayout)
		report.CheckedTo = to.Format(models.DateKeyLayout)
		stats, err := s.periods.ComputePeriodStats(ctx, userID, report.CheckedFrom, report.CheckedTo, nil)
		if err != nil {
			return nil, err
		}
		report.RecomputedTotal = stats.OverallTotal
		report.RecomputedAtt = stats.OverallPresent
	}

	report.Drift = report.RecomputedTotal != report.SummaryTotal ||
		report.RecomputedAtt != report.SummaryPresent
	if report.Drift && s.metrics != nil {
		s.metrics.IncReconcileDrift()
	}

	return report, nil
}
