package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/export"
	"github.com/attenza/attenza-api/pkg/storage"
)

type summaryReader interface {
	Get(ctx context.Context, userID string) (*models.UserSummary, error)
}

type catalogReader interface {
	List(ctx context.Context, userID string) ([]models.SubjectCatalogEntry, error)
}

// SummaryService assembles the overall view: tracked counters plus the
// imported baseline, globally and per subject. It only ever reads the
// summary; percentages use the shared rounding rule.
type SummaryService struct {
	summaries summaryReader
	catalog   catalogReader
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewSummaryService constructs the summary service.
func NewSummaryService(summaries summaryReader, catalog catalogReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{
		summaries: summaries,
		catalog:   catalog,
		storage:   store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

// SubjectOverview is one subject's combined view.
type SubjectOverview struct {
	Name           string                `json:"name"`
	Tracked        models.SubjectSummary `json:"tracked"`
	Past           models.PastAttendance `json:"past"`
	OverallTotal   int                   `json:"overall_total"`
	OverallPresent int                   `json:"overall_present"`
	Percentage     int                   `json:"percentage"`
}

// Overview is the user's overall attendance summary.
type Overview struct {
	TrackedTotal    int               `json:"tracked_total"`
	TrackedPresent  int               `json:"tracked_present"`
	PastTotal       int               `json:"past_total"`
	PastAttended    int               `json:"past_attended"`
	OverallTotal    int               `json:"overall_total"`
	OverallPresent  int               `json:"overall_present"`
	Percentage      int               `json:"percentage"`
	TrackedOnlyPct  int               `json:"tracked_only_percentage"`
	Subjects        []SubjectOverview `json:"subjects"`
}

// Overall merges the running tracked summary with the catalog baseline.
// Subjects appear in catalog order; tracked subjects missing from the
// catalog are appended alphabetically so nothing recorded is hidden.
func (s *SummaryService) Overall(ctx context.Context, userID string) (*Overview, error) {
	if userID == "" {
		return nil, appErrors.ErrNotAuthenticated
	}

	summary, err := s.summaries.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &Overview{
		TrackedTotal:   summary.TrackedTotal,
		TrackedPresent: summary.TrackedPresent,
		PastTotal:      summary.PastTotalClasses,
		PastAttended:   summary.PastAttendedClasses,
	}
	overview.OverallTotal = overview.TrackedTotal + overview.PastTotal
	overview.OverallPresent = overview.TrackedPresent + overview.PastAttended
	overview.Percentage = models.Percentage(overview.OverallTotal, overview.OverallPresent)
	overview.TrackedOnlyPct = models.Percentage(overview.TrackedTotal, overview.TrackedPresent)

	seen := make(map[string]bool, len(catalog))
	for _, entry := range catalog {
		seen[models.NormalizeSubject(entry.Name)] = true
		overview.Subjects = append(overview.Subjects, buildSubjectOverview(entry.Name, trackedSummaryFor(summary, entry.Name), entry.PastAttendance))
	}

	var extras []string
	for name := range summary.Subjects {
		if !seen[models.NormalizeSubject(name)] {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		overview.Subjects = append(overview.Subjects, buildSubjectOverview(name, summary.Subjects[name], models.PastAttendance{}))
	}

	return overview, nil
}

// trackedSummaryFor looks up a subject's tracked counters, tolerating
// case and whitespace drift between the catalog name and the key the
// ledger recorded under.
func trackedSummaryFor(summary *models.UserSummary, name string) models.SubjectSummary {
	if tracked, ok := summary.Subjects[name]; ok {
		return tracked
	}
	for recorded, tracked := range summary.Subjects {
		if models.SubjectsEqual(recorded, name) {
			return tracked
		}
	}
	return models.SubjectSummary{}
}

func buildSubjectOverview(name string, tracked models.SubjectSummary, past models.PastAttendance) SubjectOverview {
	total := tracked.TrackedTotal + past.Total
	present := tracked.TrackedPresent + past.Attended
	return SubjectOverview{
		Name:           name,
		Tracked:        tracked,
		Past:           past,
		OverallTotal:   total,
		OverallPresent: present,
		Percentage:     models.Percentage(total, present),
	}
}

// ExportResult references a stored export artifact.
type ExportResult struct {
	FileName  string    `json:"file_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Export renders the overall summary as CSV or PDF, stores the artifact
// and returns a signed download token.
func (s *SummaryService) Export(ctx context.Context, userID, format string) (*ExportResult, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "exports are not configured")
	}

	overview, err := s.Overall(ctx, userID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Subject", "Past Total", "Past Attended", "Tracked Total", "Tracked Present", "Overall %"},
	}
	for _, sub := range overview.Subjects {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject":         sub.Name,
			"Past Total":      strconv.Itoa(sub.Past.Total),
			"Past Attended":   strconv.Itoa(sub.Past.Attended),
			"Tracked Total":   strconv.Itoa(sub.Tracked.TrackedTotal),
			"Tracked Present": strconv.Itoa(sub.Tracked.TrackedPresent),
			"Overall %":       strconv.Itoa(sub.Percentage),
		})
	}

	var payload []byte
	ext := "csv"
	switch format {
	case "", "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		ext = "pdf"
		payload, err = s.pdf.Render(dataset, "Attendance Summary")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, fmt.Errorf("render summary export: %w", err)
	}

	fileName := fmt.Sprintf("%s/summary-%d.%s", userID, time.Now().UTC().Unix(), ext)
	if _, err := s.storage.Save(fileName, payload); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(userID, fileName)
	if err != nil {
		return nil, fmt.Errorf("sign export token: %w", err)
	}
	return &ExportResult{FileName: fileName, Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveExport validates a download token and returns the stored path.
func (s *SummaryService) ResolveExport(token string) (string, error) {
	if s.signer == nil || s.storage == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "exports are not configured")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid or expired export token")
	}
	return s.storage.Path(relPath), nil
}
