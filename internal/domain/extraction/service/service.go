// Package service orchestrates the financial-statement extraction pipeline:
// storage fetch, text recovery, model extraction, normalization, persistence
// and upload status transitions.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
	"github.com/ledgerpoint/practice-api/internal/domain/extraction/normalizer"
	"github.com/ledgerpoint/practice-api/internal/domain/extraction/recoverer"
	"github.com/ledgerpoint/practice-api/internal/domain/extraction/repository"
	"github.com/ledgerpoint/practice-api/pkg/llm"
)

const (
	// Low randomness: the output is a small structured JSON object, not prose.
	extractTemperature = 0.1
	extractMaxTokens   = 2000
)

// ObjectStore is the storage read surface the pipeline needs
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// CompletionProvider is the LLM surface the pipeline needs
type CompletionProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.Options) (string, error)
}

// RunObserver receives pipeline run outcomes (prometheus in production)
type RunObserver interface {
	ObserveRun(outcome string, yearsSaved int, duration time.Duration)
}

// YearOutcome reports the persistence result for one extracted fiscal year,
// so a partially failed run is visible to callers rather than hidden behind
// aggregate counts.
type YearOutcome struct {
	FiscalYear int    `json:"fiscalYear"`
	Saved      bool   `json:"saved"`
	Note       string `json:"note,omitempty"`
}

// LatestYear summarizes the newest extracted fiscal year
type LatestYear struct {
	FiscalYear  int      `json:"fiscalYear"`
	Revenue     *float64 `json:"revenue"`
	GrossProfit *float64 `json:"grossProfit"`
	NetProfit   *float64 `json:"netProfit"`
	Confidence  float64  `json:"confidence"`
}

// ExtractionResult is the outcome of one pipeline run
type ExtractionResult struct {
	UploadID       uuid.UUID     `json:"uploadId"`
	YearsExtracted int           `json:"yearsExtracted"`
	SavedRecords   int           `json:"savedRecords"`
	FiscalYears    []int         `json:"fiscalYears"`
	SavedYears     []YearOutcome `json:"savedYears"`
	LatestYear     *LatestYear   `json:"latestYear,omitempty"`
	Notes          []string      `json:"notes"`
}

// ExtractionService runs the pipeline end to end for one upload at a time.
// Concurrent runs share nothing but the datastore; the (client, fiscal_year)
// upsert is the only cross-run contention point.
type ExtractionService struct {
	uploads  repository.UploadRepository
	years    repository.FinancialYearRepository
	store    ObjectStore
	provider CompletionProvider
	observer RunObserver
	logger   *slog.Logger
}

// NewExtractionService creates the pipeline orchestrator. observer may be nil.
func NewExtractionService(
	uploads repository.UploadRepository,
	years repository.FinancialYearRepository,
	store ObjectStore,
	provider CompletionProvider,
	observer RunObserver,
	logger *slog.Logger,
) *ExtractionService {
	return &ExtractionService{
		uploads:  uploads,
		years:    years,
		store:    store,
		provider: provider,
		observer: observer,
		logger:   logger,
	}
}

// Run executes the pipeline for one upload: pending → processing →
// extracted | failed. Failed runs are terminal; the caller resubmits as a
// new upload rather than resuming.
func (s *ExtractionService) Run(ctx context.Context, uploadID uuid.UUID) (*ExtractionResult, error) {
	start := time.Now()

	rec, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &extraction.NotFoundError{UploadID: uploadID}
		}
		return nil, err
	}

	if err := s.uploads.MarkProcessing(ctx, uploadID, start); err != nil {
		return nil, fmt.Errorf("failed to start extraction run: %w", err)
	}

	result, err := s.runPipeline(ctx, rec)
	if err != nil {
		// one catch point: store the message verbatim and finalize as failed
		if failErr := s.uploads.MarkFailed(ctx, uploadID, time.Now(), err.Error()); failErr != nil {
			s.logger.Error("failed to finalize failed upload",
				slog.String("uploadId", uploadID.String()),
				slog.Any("error", failErr),
			)
		}
		s.observe("failed", 0, start)
		s.logger.Error("extraction run failed",
			slog.String("uploadId", uploadID.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.observe("extracted", result.SavedRecords, start)
	s.logger.Info("extraction run completed",
		slog.String("uploadId", uploadID.String()),
		slog.Int("yearsExtracted", result.YearsExtracted),
		slog.Int("savedRecords", result.SavedRecords),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// runPipeline performs stages 3-8; any returned error moves the upload to failed.
func (s *ExtractionService) runPipeline(ctx context.Context, rec *extraction.UploadRecord) (*ExtractionResult, error) {
	data, err := s.store.Download(ctx, rec.StorageKey)
	if err != nil {
		return nil, &extraction.StorageError{Key: rec.StorageKey, Err: err}
	}

	text := recoverer.RecoverText(data, rec.ContainerType)

	// The quality gate guards the PDF path only: spreadsheet and delimited
	// containers carry their text directly and short CSVs are legitimate.
	if rec.ContainerType == extraction.ContainerPDF && !recoverer.MeetsQualityGate(text) {
		return nil, &extraction.InsufficientTextError{Recovered: len(strings.TrimSpace(text))}
	}

	prompt := extraction.BuildExtractionPrompt(text, rec.FiscalYearHint)
	raw, err := s.provider.Complete(ctx, extraction.SystemPrompt, prompt, llm.Options{
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
	})
	if err != nil {
		return nil, &extraction.ProviderError{Err: err}
	}

	fallbackYear := time.Now().Year()
	if rec.FiscalYearHint != nil {
		fallbackYear = *rec.FiscalYearHint
	}

	years, err := normalizer.Normalize(raw, fallbackYear)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResult{
		UploadID: rec.ID,
		Notes:    []string{},
	}

	// Persist year by year: a year that fails to save is reported, not
	// fatal, as long as at least one year lands.
	for i := range years {
		normalizer.ComputeDerivedMetrics(&years[i])
		d := &years[i]

		result.YearsExtracted++
		result.FiscalYears = append(result.FiscalYears, d.FiscalYear)
		for _, note := range d.Notes {
			result.Notes = append(result.Notes, fmt.Sprintf("FY%d: %s", d.FiscalYear, note))
		}

		row := buildYearRecord(rec, d)
		if err := s.years.Upsert(ctx, row); err != nil {
			s.logger.Error("failed to save financial year",
				slog.String("uploadId", rec.ID.String()),
				slog.Int("fiscalYear", d.FiscalYear),
				slog.Any("error", err),
			)
			result.SavedYears = append(result.SavedYears, YearOutcome{
				FiscalYear: d.FiscalYear,
				Saved:      false,
				Note:       err.Error(),
			})
			result.Notes = append(result.Notes, fmt.Sprintf("FY%d could not be saved: %v", d.FiscalYear, err))
			continue
		}
		result.SavedRecords++
		result.SavedYears = append(result.SavedYears, YearOutcome{FiscalYear: d.FiscalYear, Saved: true})
	}

	if result.SavedRecords == 0 {
		return nil, fmt.Errorf("no extracted fiscal year could be saved")
	}
	result.FiscalYears = sortedYears(result.FiscalYears)

	latest := latestYear(years)
	result.LatestYear = &LatestYear{
		FiscalYear:  latest.FiscalYear,
		Revenue:     latest.Revenue,
		GrossProfit: latest.GrossProfit,
		NetProfit:   latest.NetProfit,
		Confidence:  latest.Confidence,
	}

	rawPayload, err := json.Marshal(years)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction payload: %w", err)
	}

	if err := s.uploads.MarkExtracted(ctx, rec.ID, time.Now(), latest.Confidence, latest.FiscalYear, parseDate(latest.FiscalYearEnd), rawPayload); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	return result, nil
}

// latestYear picks the entry with the maximum fiscal year
func latestYear(years []extraction.ExtractedFinancialData) *extraction.ExtractedFinancialData {
	latest := &years[0]
	for i := range years[1:] {
		if years[i+1].FiscalYear > latest.FiscalYear {
			latest = &years[i+1]
		}
	}
	return latest
}

// buildYearRecord maps normalized extraction output onto a persistent row
func buildYearRecord(rec *extraction.UploadRecord, d *extraction.ExtractedFinancialData) *extraction.FinancialYearRecord {
	row := &extraction.FinancialYearRecord{
		ClientID:     rec.ClientID,
		PracticeID:   rec.PracticeID,
		UploadID:     &rec.ID,
		FiscalYear:   d.FiscalYear,
		PeriodMonths: d.PeriodMonths,

		FiscalYearEnd: parseDate(d.FiscalYearEnd),

		Revenue:             d.Revenue,
		CostOfSales:         d.CostOfSales,
		GrossProfit:         d.GrossProfit,
		GrossMarginPct:      d.GrossMarginPct,
		OperatingExpenses:   d.OperatingExpenses,
		EBITDA:              d.EBITDA,
		EBITDAMarginPct:     d.EBITDAMarginPct,
		Depreciation:        d.Depreciation,
		Amortisation:        d.Amortisation,
		Interest:            d.Interest,
		Tax:                 d.Tax,
		NetProfit:           d.NetProfit,
		NetMarginPct:        d.NetMarginPct,
		TotalAssets:         d.TotalAssets,
		CurrentAssets:       d.CurrentAssets,
		FixedAssets:         d.FixedAssets,
		TotalLiabilities:    d.TotalLiabilities,
		CurrentLiabilities:  d.CurrentLiabilities,
		LongTermLiabilities: d.LongTermLiabilities,
		NetAssets:           d.NetAssets,
		Debtors:             d.Debtors,
		Creditors:           d.Creditors,
		Stock:               d.Stock,
		Cash:                d.Cash,
		DebtorDays:          d.DebtorDays,
		CreditorDays:        d.CreditorDays,
		EmployeeCount:       d.EmployeeCount,
		RevenuePerEmployee:  d.RevenuePerEmployee,

		DataSource: extraction.DataSourceExtraction,
		Confidence: d.Confidence,
	}

	if len(d.Notes) > 0 {
		notes := strings.Join(d.Notes, "; ")
		row.Notes = &notes
	}

	return row
}

// parseDate parses a YYYY-MM-DD string, returning nil on absence or mismatch
func parseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}

func (s *ExtractionService) observe(outcome string, yearsSaved int, start time.Time) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveRun(outcome, yearsSaved, time.Since(start))
}

// sortedYears returns the distinct fiscal years ascending (for reporting)
func sortedYears(years []int) []int {
	out := append([]int(nil), years...)
	sort.Ints(out)
	return out
}
