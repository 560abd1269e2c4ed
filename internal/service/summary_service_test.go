package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
	"github.com/attenza/attenza-api/pkg/storage"
)

type fakeCatalogReader struct {
	entries []models.SubjectCatalogEntry
}

func (f *fakeCatalogReader) List(context.Context, string) ([]models.SubjectCatalogEntry, error) {
	return f.entries, nil
}

func trackedSummary() *models.UserSummary {
	summary := models.ZeroUserSummary("user-1")
	summary.TrackedTotal = 5
	summary.TrackedPresent = 4
	summary.PastTotalClasses = 40
	summary.PastAttendedClasses = 30
	summary.Subjects = map[string]models.SubjectSummary{
		"Physics": {TrackedTotal: 3, TrackedPresent: 3},
		"Math":    {TrackedTotal: 2, TrackedPresent: 1},
	}
	return summary
}

func TestOverallRequiresIdentity(t *testing.T) {
	svc := NewSummaryService(&fakeSummaryReader{}, &fakeCatalogReader{}, nil, nil, nil)
	_, err := svc.Overall(context.Background(), "")
	require.ErrorIs(t, err, appErrors.ErrNotAuthenticated)
}

func TestOverallMergesTrackedAndBaseline(t *testing.T) {
	catalog := &fakeCatalogReader{entries: []models.SubjectCatalogEntry{
		{Name: "Physics", PastAttendance: models.PastAttendance{Total: 20, Attended: 15}},
		{Name: "Chemistry", PastAttendance: models.PastAttendance{Total: 20, Attended: 15}},
	}}
	svc := NewSummaryService(&fakeSummaryReader{summary: trackedSummary()}, catalog, nil, nil, nil)

	overview, err := svc.Overall(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 45, overview.OverallTotal)
	assert.Equal(t, 34, overview.OverallPresent)
	assert.Equal(t, 76, overview.Percentage)
	assert.Equal(t, 80, overview.TrackedOnlyPct)

	// Catalog order first, then tracked-only subjects alphabetically.
	require.Len(t, overview.Subjects, 3)
	assert.Equal(t, "Physics", overview.Subjects[0].Name)
	assert.Equal(t, "Chemistry", overview.Subjects[1].Name)
	assert.Equal(t, "Math", overview.Subjects[2].Name)

	physics := overview.Subjects[0]
	assert.Equal(t, 23, physics.OverallTotal)
	assert.Equal(t, 18, physics.OverallPresent)
	assert.Equal(t, 78, physics.Percentage)

	// Chemistry has no tracked entries yet; baseline still shows.
	chemistry := overview.Subjects[1]
	assert.Equal(t, 20, chemistry.OverallTotal)
	assert.Equal(t, 75, chemistry.Percentage)

	// Math is tracked but absent from the catalog.
	math := overview.Subjects[2]
	assert.Zero(t, math.Past.Total)
	assert.Equal(t, 2, math.OverallTotal)
	assert.Equal(t, 50, math.Percentage)
}

func TestOverallMatchesSubjectsIgnoringCase(t *testing.T) {
	summary := models.ZeroUserSummary("user-1")
	summary.TrackedTotal = 3
	summary.TrackedPresent = 3
	summary.Subjects = map[string]models.SubjectSummary{
		"physics ": {TrackedTotal: 3, TrackedPresent: 3},
	}
	catalog := &fakeCatalogReader{entries: []models.SubjectCatalogEntry{
		{Name: "Physics", PastAttendance: models.PastAttendance{Total: 20, Attended: 15}},
	}}
	svc := NewSummaryService(&fakeSummaryReader{summary: summary}, catalog, nil, nil, nil)

	overview, err := svc.Overall(context.Background(), "user-1")
	require.NoError(t, err)

	// The differently-cased tracked key merges into the catalog row
	// instead of appearing twice.
	require.Len(t, overview.Subjects, 1)
	physics := overview.Subjects[0]
	assert.Equal(t, "Physics", physics.Name)
	assert.Equal(t, 3, physics.Tracked.TrackedTotal)
	assert.Equal(t, 23, physics.OverallTotal)
	assert.Equal(t, 18, physics.OverallPresent)
}

func TestOverallZeroState(t *testing.T) {
	svc := NewSummaryService(&fakeSummaryReader{}, &fakeCatalogReader{}, nil, nil, nil)

	overview, err := svc.Overall(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, overview.OverallTotal)
	assert.Zero(t, overview.Percentage)
	assert.Empty(t, overview.Subjects)
}

func TestExportWithoutStorageConfigured(t *testing.T) {
	svc := NewSummaryService(&fakeSummaryReader{}, &fakeCatalogReader{}, nil, nil, nil)
	_, err := svc.Export(context.Background(), "user-1", "csv")
	require.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	store, signer := exportFixtures(t)
	svc := NewSummaryService(&fakeSummaryReader{summary: trackedSummary()}, &fakeCatalogReader{}, store, signer, nil)

	_, err := svc.Export(context.Background(), "user-1", "xlsx")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportCSVRoundTrip(t *testing.T) {
	store, signer := exportFixtures(t)
	catalog := &fakeCatalogReader{entries: []models.SubjectCatalogEntry{
		{Name: "Physics", PastAttendance: models.PastAttendance{Total: 20, Attended: 15}},
	}}
	svc := NewSummaryService(&fakeSummaryReader{summary: trackedSummary()}, catalog, store, signer, nil)

	result, err := svc.Export(context.Background(), "user-1", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.FileName, ".csv"))
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	path, err := svc.ResolveExport(result.Token)
	require.NoError(t, err)
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Physics")
	assert.Contains(t, string(payload), "Tracked Present")
}

func TestExportPDFProducesArtifact(t *testing.T) {
	store, signer := exportFixtures(t)
	svc := NewSummaryService(&fakeSummaryReader{summary: trackedSummary()}, &fakeCatalogReader{}, store, signer, nil)

	result, err := svc.Export(context.Background(), "user-1", "pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.FileName, ".pdf"))

	file, err := store.Open(result.FileName)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	header := make([]byte, 4)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestResolveExportRejectsTamperedToken(t *testing.T) {
	store, signer := exportFixtures(t)
	svc := NewSummaryService(&fakeSummaryReader{summary: trackedSummary()}, &fakeCatalogReader{}, store, signer, nil)

	result, err := svc.Export(context.Background(), "user-1", "csv")
	require.NoError(t, err)

	_, err = svc.ResolveExport(result.Token + "x")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func exportFixtures(t *testing.T) (*storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store, storage.NewSignedURLSigner("test-secret", time.Hour)
}
