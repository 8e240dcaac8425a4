// Package repository persists upload records and financial year rows.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
)

// PgxIface is the subset of pgxpool.Pool the repositories use. pgxmock
// satisfies it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UploadRepository manages UploadRecord lifecycle transitions. Records are
// created by the upload-intake path and never deleted here.
type UploadRepository interface {
	// GetByID returns the upload record, or sql.ErrNoRows when absent
	GetByID(ctx context.Context, id uuid.UUID) (*extraction.UploadRecord, error)

	// MarkProcessing transitions the record to processing and stamps the start time
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error

	// MarkExtracted finalizes a successful run: latest-year summary fields,
	// the raw per-year audit payload, and the completion time
	MarkExtracted(ctx context.Context, id uuid.UUID, completedAt time.Time, confidence float64, fiscalYear int, fiscalYearEnd *time.Time, rawExtraction []byte) error

	// MarkFailed finalizes a failed run with the verbatim error message
	MarkFailed(ctx context.Context, id uuid.UUID, completedAt time.Time, message string) error

	// FailStaleProcessing fails uploads stuck in processing since before the
	// cutoff and returns how many were swept
	FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)
}

// FinancialYearRepository upserts per-year financial rows keyed on
// (client_id, fiscal_year).
type FinancialYearRepository interface {
	Upsert(ctx context.Context, rec *extraction.FinancialYearRecord) error
	GetByClientYear(ctx context.Context, clientID uuid.UUID, fiscalYear int) (*extraction.FinancialYearRecord, error)
}
