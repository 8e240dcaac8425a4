package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
	"github.com/ledgerpoint/practice-api/pkg/llm"
)

// ----------------------------------------------------------------------------
// fakes
// ----------------------------------------------------------------------------

type fakeUploads struct {
	recs map[uuid.UUID]*extraction.UploadRecord
}

func newFakeUploads(recs ...*extraction.UploadRecord) *fakeUploads {
	f := &fakeUploads{recs: make(map[uuid.UUID]*extraction.UploadRecord)}
	for _, r := range recs {
		f.recs[r.ID] = r
	}
	return f
}

func (f *fakeUploads) GetByID(_ context.Context, id uuid.UUID) (*extraction.UploadRecord, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeUploads) MarkProcessing(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	rec, ok := f.recs[id]
	if !ok {
		return sql.ErrNoRows
	}
	rec.Status = extraction.StatusProcessing
	rec.StartedAt = &startedAt
	return nil
}

func (f *fakeUploads) MarkExtracted(_ context.Context, id uuid.UUID, completedAt time.Time, confidence float64, fiscalYear int, fiscalYearEnd *time.Time, rawExtraction []byte) error {
	rec, ok := f.recs[id]
	if !ok {
		return sql.ErrNoRows
	}
	rec.Status = extraction.StatusExtracted
	rec.CompletedAt = &completedAt
	rec.Confidence = &confidence
	rec.FiscalYear = &fiscalYear
	rec.FiscalYearEnd = fiscalYearEnd
	rec.RawExtraction = rawExtraction
	return nil
}

func (f *fakeUploads) MarkFailed(_ context.Context, id uuid.UUID, completedAt time.Time, message string) error {
	rec, ok := f.recs[id]
	if !ok {
		return sql.ErrNoRows
	}
	rec.Status = extraction.StatusFailed
	rec.CompletedAt = &completedAt
	rec.ErrorMessage = &message
	return nil
}

func (f *fakeUploads) FailStaleProcessing(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type yearKey struct {
	client uuid.UUID
	year   int
}

type fakeYears struct {
	rows      map[yearKey]*extraction.FinancialYearRecord
	failYears map[int]error
}

func newFakeYears() *fakeYears {
	return &fakeYears{
		rows:      make(map[yearKey]*extraction.FinancialYearRecord),
		failYears: make(map[int]error),
	}
}

func (f *fakeYears) Upsert(_ context.Context, rec *extraction.FinancialYearRecord) error {
	if err := f.failYears[rec.FiscalYear]; err != nil {
		return err
	}
	cp := *rec
	f.rows[yearKey{rec.ClientID, rec.FiscalYear}] = &cp
	return nil
}

func (f *fakeYears) GetByClientYear(_ context.Context, clientID uuid.UUID, fiscalYear int) (*extraction.FinancialYearRecord, error) {
	rec, ok := f.rows[yearKey{clientID, fiscalYear}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rec, nil
}

type fakeStore struct {
	files map[string][]byte
	err   error
}

func (f *fakeStore) Download(_ context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return data, nil
}

type fakeProvider struct {
	response string
	err      error

	calls      int
	lastSystem string
	lastUser   string
	lastOpts   llm.Options
}

func (f *fakeProvider) Complete(_ context.Context, systemPrompt, userPrompt string, opts llm.Options) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.lastOpts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeObserver struct {
	outcome    string
	yearsSaved int
	runs       int
}

func (f *fakeObserver) ObserveRun(outcome string, yearsSaved int, _ time.Duration) {
	f.runs++
	f.outcome = outcome
	f.yearsSaved = yearsSaved
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPendingUpload(containerType extraction.ContainerType, key string) *extraction.UploadRecord {
	return &extraction.UploadRecord{
		ID:            uuid.New(),
		ClientID:      uuid.New(),
		PracticeID:    uuid.New(),
		StorageKey:    key,
		ContainerType: containerType,
		Status:        extraction.StatusPending,
	}
}

// ----------------------------------------------------------------------------
// tests
// ----------------------------------------------------------------------------

func TestRun_UnknownUpload(t *testing.T) {
	uploads := newFakeUploads()
	provider := &fakeProvider{}
	svc := NewExtractionService(uploads, newFakeYears(), &fakeStore{}, provider, nil, testLogger())

	_, err := svc.Run(context.Background(), uuid.New())

	var notFound *extraction.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Zero(t, provider.calls)
}

func TestRun_CSVEndToEnd(t *testing.T) {
	up := newPendingUpload(extraction.ContainerCSV, "uploads/acme/2024.csv")
	uploads := newFakeUploads(up)
	years := newFakeYears()
	store := &fakeStore{files: map[string][]byte{
		up.StorageKey: []byte("Metric,FY2024\nRevenue,610000\nCost of sales,212000\nGross profit,398000\n"),
	}}
	provider := &fakeProvider{
		response: "```json\n" +
			`{"years":[{"fiscal_year":2024,"fiscal_year_end":"2024-03-31","revenue":610000,"cost_of_sales":212000,"gross_profit":398000,"confidence":0.9}]}` +
			"\n```",
	}
	observer := &fakeObserver{}
	svc := NewExtractionService(uploads, years, store, provider, observer, testLogger())

	result, err := svc.Run(context.Background(), up.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.YearsExtracted)
	assert.Equal(t, 1, result.SavedRecords)
	assert.Equal(t, []int{2024}, result.FiscalYears)
	require.Len(t, result.SavedYears, 1)
	assert.True(t, result.SavedYears[0].Saved)
	require.NotNil(t, result.LatestYear)
	assert.Equal(t, 2024, result.LatestYear.FiscalYear)
	require.NotNil(t, result.LatestYear.Revenue)
	assert.Equal(t, 610000.0, *result.LatestYear.Revenue)

	// the document text reached the provider untouched
	assert.Equal(t, 1, provider.calls)
	assert.Contains(t, provider.lastUser, "Revenue,610000")
	assert.Equal(t, extractTemperature, provider.lastOpts.Temperature)

	// persisted row carries derived metrics and provenance
	row, err := years.GetByClientYear(context.Background(), up.ClientID, 2024)
	require.NoError(t, err)
	require.NotNil(t, row.GrossMarginPct)
	assert.Equal(t, 65.2, *row.GrossMarginPct)
	assert.Equal(t, extraction.DataSourceExtraction, row.DataSource)
	require.NotNil(t, row.UploadID)
	assert.Equal(t, up.ID, *row.UploadID)
	require.NotNil(t, row.FiscalYearEnd)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), *row.FiscalYearEnd)

	// upload finalized with the latest-year summary and the audit payload
	rec := uploads.recs[up.ID]
	assert.Equal(t, extraction.StatusExtracted, rec.Status)
	require.NotNil(t, rec.Confidence)
	assert.Equal(t, 0.9, *rec.Confidence)
	require.NotNil(t, rec.FiscalYear)
	assert.Equal(t, 2024, *rec.FiscalYear)

	var audit []extraction.ExtractedFinancialData
	require.NoError(t, json.Unmarshal(rec.RawExtraction, &audit))
	require.Len(t, audit, 1)

	assert.Equal(t, "extracted", observer.outcome)
	assert.Equal(t, 1, observer.yearsSaved)
}

func TestRun_ShortPDFFailsBeforeProvider(t *testing.T) {
	up := newPendingUpload(extraction.ContainerPDF, "uploads/acme/scan.pdf")
	uploads := newFakeUploads(up)
	store := &fakeStore{files: map[string][]byte{
		up.StorageKey: []byte("%PDF-1.4 (Acme Ltd 2024) Tj %%EOF"),
	}}
	provider := &fakeProvider{}
	observer := &fakeObserver{}
	svc := NewExtractionService(uploads, newFakeYears(), store, provider, observer, testLogger())

	_, err := svc.Run(context.Background(), up.ID)

	var insufficient *extraction.InsufficientTextError
	require.True(t, errors.As(err, &insufficient))
	assert.Zero(t, provider.calls, "the provider must not be called for unusable text")

	rec := uploads.recs[up.ID]
	assert.Equal(t, extraction.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "CSV or Excel")
	assert.Contains(t, *rec.ErrorMessage, "manually")

	assert.Equal(t, "failed", observer.outcome)
}

func TestRun_ShortCSVStillExtracts(t *testing.T) {
	// delimited containers skip the recovered-text gate: a tiny CSV is valid input
	up := newPendingUpload(extraction.ContainerCSV, "tiny.csv")
	uploads := newFakeUploads(up)
	store := &fakeStore{files: map[string][]byte{
		up.StorageKey: []byte("Year,Revenue\n2024,610000\n"),
	}}
	provider := &fakeProvider{response: `{"years":[{"fiscal_year":2024,"revenue":610000}]}`}
	svc := NewExtractionService(uploads, newFakeYears(), store, provider, nil, testLogger())

	result, err := svc.Run(context.Background(), up.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SavedRecords)
	assert.Equal(t, 1, provider.calls)
}

func TestRun_StorageFailure(t *testing.T) {
	up := newPendingUpload(extraction.ContainerPDF, "gone.pdf")
	uploads := newFakeUploads(up)
	store := &fakeStore{err: errors.New("connection timed out")}
	svc := NewExtractionService(uploads, newFakeYears(), store, &fakeProvider{}, nil, testLogger())

	_, err := svc.Run(context.Background(), up.ID)

	var storageErr *extraction.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "gone.pdf", storageErr.Key)
	assert.Equal(t, extraction.StatusFailed, uploads.recs[up.ID].Status)
}

func TestRun_ProviderFailure(t *testing.T) {
	up := newPendingUpload(extraction.ContainerCSV, "a.csv")
	uploads := newFakeUploads(up)
	store := &fakeStore{files: map[string][]byte{up.StorageKey: []byte("Revenue,610000\n")}}
	provider := &fakeProvider{err: &llm.StatusError{StatusCode: 503, Body: "overloaded"}}
	svc := NewExtractionService(uploads, newFakeYears(), store, provider, nil, testLogger())

	_, err := svc.Run(context.Background(), up.ID)

	var providerErr *extraction.ProviderError
	require.True(t, errors.As(err, &providerErr))

	rec := uploads.recs[up.ID]
	assert.Equal(t, extraction.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "503")
}

func TestRun_MalformedProviderResponse(t *testing.T) {
	up := newPendingUpload(extraction.ContainerCSV, "a.csv")
	uploads := newFakeUploads(up)
	store := &fakeStore{files: map[string][]byte{up.StorageKey: []byte("Revenue,610000\n")}}
	provider := &fakeProvider{response: "I am sorry, I could not read the accounts in this document."}
	svc := NewExtractionService(uploads, newFakeYears(), store, provider, nil, testLogger())

	_, err := svc.Run(context.Background(), up.ID)

	var malformed *extraction.MalformedExtractionError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, extraction.StatusFailed, uploads.recs[up.ID].Status)
}

func TestRun_MultiYearSortedAndSummarized(t *testing.T) {
	up := newPendingUpload(extraction.ContainerCSV, "comparatives.csv")
	uploads := newFakeUploads(up)
	years := newFakeYears()
	store := &fakeStore{files: map[string][]byte{up.StorageKey: []byte("comparative accounts\n")}}
	provider := &fakeProvider{response: `{"years":[
		{"fiscal_year":2024,"revenue":610000,"confidence":0.9},
		{"fiscal_year":2023,"revenue":540000,"confidence":0.8}
	]}`}
	svc := NewExtractionService(uploads, years, store, provider, nil, testLogger())

	result, err := svc.Run(context.Background(), up.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.YearsExtracted)
	assert.Equal(t, 2, result.SavedRecords)
	assert.Equal(t, []int{2023, 2024}, result.FiscalYears, "reported years are ascending")
	require.NotNil(t, result.LatestYear)
	assert.Equal(t, 2024, result.LatestYear.FiscalYear)

	rec := uploads.recs[up.ID]
	require.NotNil(t, rec.FiscalYear)
	assert.Equal(t, 2024, *rec.FiscalYear, "upload summary tracks the newest year")
	require.NotNil(t, rec.Confidence)
	assert.Equal(t, 0.9, *rec.Confidence)
}

func TestRun_PartialSaveIsReportedNotFatal(t *testing.T) {
	up := newPendingUpload(extraction.ContainerCSV, "comparatives.csv")
	uploads := newFakeUploads(up)
	years := newFakeYears()
	years.failYears[2023] = errors.New("deadlock detected")
	store := &fakeStore{files: map[string][]byte{up.StorageKey: []byte("comparative accounts\n")}}
	provider := &fakeProvider{response: `{"years":[
		{"fiscal_year":2024,"revenue":610000},
		{"fiscal_year":2023,"revenue":540000}
	]}`}
	svc := NewExtractionService(uploads, years, store, provider, nil, testLogger())

	result, err := svc.Run(context.Background(), up.ID)
	require.NoError(t, err, "one landed year keeps the run successful")

	assert.Equal(t, 2, result.YearsExtracted)
	assert.Equal(t, 1, result.SavedRecords)
	require.Len(t, result.SavedYears, 2)

	byYear := map[int]YearOutcome{}
	for _, o := range result.SavedYears {
		byYear[o.FiscalYear] = o
	}
	assert.True(t, byYear[2024].Saved)
	assert.False(t, byYear[2023].Saved)
	assert.Contains(t, byYear[2023].Note, "deadlock")
	assert.Contains(t, strings.Join(result.Notes, "\n"), "FY2023 could not be saved")

	assert.Equal(t, extraction.StatusExtracted, uploads.recs[up.ID].Status)
}

func TestRun_NoYearSavedFailsTheRun(t *testing.T) {
	up := newPendingUpload(extraction.ContainerCSV, "a.csv")
	uploads := newFakeUploads(up)
	years := newFakeYears()
	years.failYears[2024] = errors.New("disk full")
	store := &fakeStore{files: map[string][]byte{up.StorageKey: []byte("Revenue,610000\n")}}
	provider := &fakeProvider{response: `{"years":[{"fiscal_year":2024,"revenue":610000}]}`}
	svc := NewExtractionService(uploads, years, store, provider, nil, testLogger())

	_, err := svc.Run(context.Background(), up.ID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extracted fiscal year could be saved")
	assert.Equal(t, extraction.StatusFailed, uploads.recs[up.ID].Status)
}

func TestRun_ReUploadOverwritesSameYear(t *testing.T) {
	client := uuid.New()
	practice := uuid.New()
	first := newPendingUpload(extraction.ContainerCSV, "v1.csv")
	second := newPendingUpload(extraction.ContainerCSV, "v2.csv")
	first.ClientID, second.ClientID = client, client
	first.PracticeID, second.PracticeID = practice, practice

	uploads := newFakeUploads(first, second)
	years := newFakeYears()
	store := &fakeStore{files: map[string][]byte{
		"v1.csv": []byte("Revenue,600000\n"),
		"v2.csv": []byte("Revenue,610000\n"),
	}}
	provider := &fakeProvider{response: `{"years":[{"fiscal_year":2024,"revenue":600000}]}`}
	svc := NewExtractionService(uploads, years, store, provider, nil, testLogger())

	_, err := svc.Run(context.Background(), first.ID)
	require.NoError(t, err)

	provider.response = `{"years":[{"fiscal_year":2024,"revenue":610000}]}`
	_, err = svc.Run(context.Background(), second.ID)
	require.NoError(t, err)

	assert.Len(t, years.rows, 1, "same (client, year) must not duplicate")
	row, err := years.GetByClientYear(context.Background(), client, 2024)
	require.NoError(t, err)
	require.NotNil(t, row.Revenue)
	assert.Equal(t, 610000.0, *row.Revenue)
	require.NotNil(t, row.UploadID)
	assert.Equal(t, second.ID, *row.UploadID)
}

func TestRun_YearHintDisambiguates(t *testing.T) {
	hint := 2023
	up := newPendingUpload(extraction.ContainerCSV, "a.csv")
	up.FiscalYearHint = &hint
	uploads := newFakeUploads(up)
	store := &fakeStore{files: map[string][]byte{up.StorageKey: []byte("Revenue,540000\n")}}
	provider := &fakeProvider{response: `{"years":[{"revenue":540000}]}`}
	svc := NewExtractionService(uploads, newFakeYears(), store, provider, nil, testLogger())

	result, err := svc.Run(context.Background(), up.ID)
	require.NoError(t, err)

	assert.Contains(t, provider.lastUser, "fiscal year 2023", "hint is surfaced to the provider")
	assert.Equal(t, []int{2023}, result.FiscalYears, "missing fiscal_year falls back to the hint")
	assert.Contains(t, strings.Join(result.Notes, "\n"), "assumed 2023")
}
