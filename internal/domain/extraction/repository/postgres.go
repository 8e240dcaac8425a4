package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
)

// staleSweepMessage is stored on uploads failed by the stale-run sweeper
const staleSweepMessage = "extraction run was interrupted and did not complete; please resubmit the upload"

// PostgresUploadRepository implements UploadRepository using PostgreSQL
type PostgresUploadRepository struct {
	db PgxIface
}

// NewPostgresUploadRepository creates a new PostgreSQL upload repository
func NewPostgresUploadRepository(db PgxIface) *PostgresUploadRepository {
	return &PostgresUploadRepository{db: db}
}

// GetByID retrieves an upload record by ID
func (r *PostgresUploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*extraction.UploadRecord, error) {
	query := `
		SELECT id, client_id, practice_id, storage_key, container_type, fiscal_year_hint,
		       status, started_at, completed_at, confidence, fiscal_year, fiscal_year_end,
		       raw_extraction, error_message, created_at, updated_at
		FROM uploads
		WHERE id = $1`

	rec := &extraction.UploadRecord{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.ClientID,
		&rec.PracticeID,
		&rec.StorageKey,
		&rec.ContainerType,
		&rec.FiscalYearHint,
		&rec.Status,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.Confidence,
		&rec.FiscalYear,
		&rec.FiscalYearEnd,
		&rec.RawExtraction,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return rec, nil
}

// MarkProcessing transitions the record to processing
func (r *PostgresUploadRepository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		UPDATE uploads
		SET status = $2, started_at = $3, error_message = NULL, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, extraction.StatusProcessing, startedAt)
	if err != nil {
		return fmt.Errorf("failed to mark upload processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkExtracted finalizes a successful run
func (r *PostgresUploadRepository) MarkExtracted(ctx context.Context, id uuid.UUID, completedAt time.Time, confidence float64, fiscalYear int, fiscalYearEnd *time.Time, rawExtraction []byte) error {
	query := `
		UPDATE uploads
		SET status = $2, completed_at = $3, confidence = $4, fiscal_year = $5,
		    fiscal_year_end = $6, raw_extraction = $7, error_message = NULL, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, extraction.StatusExtracted, completedAt, confidence, fiscalYear, fiscalYearEnd, rawExtraction)
	if err != nil {
		return fmt.Errorf("failed to mark upload extracted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFailed finalizes a failed run with the verbatim error message
func (r *PostgresUploadRepository) MarkFailed(ctx context.Context, id uuid.UUID, completedAt time.Time, message string) error {
	query := `
		UPDATE uploads
		SET status = $2, completed_at = $3, error_message = $4, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, extraction.StatusFailed, completedAt, message)
	if err != nil {
		return fmt.Errorf("failed to mark upload failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FailStaleProcessing fails uploads stuck in processing since before cutoff
func (r *PostgresUploadRepository) FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE uploads
		SET status = $1, completed_at = now(), error_message = $2, updated_at = now()
		WHERE status = $3 AND started_at < $4`

	tag, err := r.db.Exec(ctx, query, extraction.StatusFailed, staleSweepMessage, extraction.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale uploads: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresFinancialYearRepository implements FinancialYearRepository using PostgreSQL
type PostgresFinancialYearRepository struct {
	db PgxIface
}

// NewPostgresFinancialYearRepository creates a new PostgreSQL financial year repository
func NewPostgresFinancialYearRepository(db PgxIface) *PostgresFinancialYearRepository {
	return &PostgresFinancialYearRepository{db: db}
}

// Upsert inserts or overwrites the row for (client_id, fiscal_year). The
// conflict target makes concurrent runs for the same year race to a
// last-writer-wins outcome instead of duplicating rows.
func (r *PostgresFinancialYearRepository) Upsert(ctx context.Context, rec *extraction.FinancialYearRecord) error {
	query := `
		INSERT INTO financial_years (
			id, client_id, practice_id, upload_id, fiscal_year, fiscal_year_end, period_months,
			revenue, cost_of_sales, gross_profit, gross_margin_pct, operating_expenses,
			ebitda, ebitda_margin_pct, depreciation, amortisation, interest, tax,
			net_profit, net_margin_pct, total_assets, current_assets, fixed_assets,
			total_liabilities, current_liabilities, long_term_liabilities, net_assets,
			debtors, creditors, stock, cash, debtor_days, creditor_days,
			employee_count, revenue_per_employee, data_source, confidence, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34,
			$35, $36, $37, $38
		)
		ON CONFLICT (client_id, fiscal_year) DO UPDATE SET
			practice_id = EXCLUDED.practice_id,
			upload_id = EXCLUDED.upload_id,
			fiscal_year_end = EXCLUDED.fiscal_year_end,
			period_months = EXCLUDED.period_months,
			revenue = EXCLUDED.revenue,
			cost_of_sales = EXCLUDED.cost_of_sales,
			gross_profit = EXCLUDED.gross_profit,
			gross_margin_pct = EXCLUDED.gross_margin_pct,
			operating_expenses = EXCLUDED.operating_expenses,
			ebitda = EXCLUDED.ebitda,
			ebitda_margin_pct = EXCLUDED.ebitda_margin_pct,
			depreciation = EXCLUDED.depreciation,
			amortisation = EXCLUDED.amortisation,
			interest = EXCLUDED.interest,
			tax = EXCLUDED.tax,
			net_profit = EXCLUDED.net_profit,
			net_margin_pct = EXCLUDED.net_margin_pct,
			total_assets = EXCLUDED.total_assets,
			current_assets = EXCLUDED.current_assets,
			fixed_assets = EXCLUDED.fixed_assets,
			total_liabilities = EXCLUDED.total_liabilities,
			current_liabilities = EXCLUDED.current_liabilities,
			long_term_liabilities = EXCLUDED.long_term_liabilities,
			net_assets = EXCLUDED.net_assets,
			debtors = EXCLUDED.debtors,
			creditors = EXCLUDED.creditors,
			stock = EXCLUDED.stock,
			cash = EXCLUDED.cash,
			debtor_days = EXCLUDED.debtor_days,
			creditor_days = EXCLUDED.creditor_days,
			employee_count = EXCLUDED.employee_count,
			revenue_per_employee = EXCLUDED.revenue_per_employee,
			data_source = EXCLUDED.data_source,
			confidence = EXCLUDED.confidence,
			notes = EXCLUDED.notes,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.DataSource == "" {
		rec.DataSource = extraction.DataSourceExtraction
	}

	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.ClientID,
		rec.PracticeID,
		rec.UploadID,
		rec.FiscalYear,
		rec.FiscalYearEnd,
		rec.PeriodMonths,
		rec.Revenue,
		rec.CostOfSales,
		rec.GrossProfit,
		rec.GrossMarginPct,
		rec.OperatingExpenses,
		rec.EBITDA,
		rec.EBITDAMarginPct,
		rec.Depreciation,
		rec.Amortisation,
		rec.Interest,
		rec.Tax,
		rec.NetProfit,
		rec.NetMarginPct,
		rec.TotalAssets,
		rec.CurrentAssets,
		rec.FixedAssets,
		rec.TotalLiabilities,
		rec.CurrentLiabilities,
		rec.LongTermLiabilities,
		rec.NetAssets,
		rec.Debtors,
		rec.Creditors,
		rec.Stock,
		rec.Cash,
		rec.DebtorDays,
		rec.CreditorDays,
		rec.EmployeeCount,
		rec.RevenuePerEmployee,
		rec.DataSource,
		rec.Confidence,
		rec.Notes,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert financial year %d: %w", rec.FiscalYear, err)
	}
	return nil
}

// GetByClientYear retrieves the row for (client_id, fiscal_year)
func (r *PostgresFinancialYearRepository) GetByClientYear(ctx context.Context, clientID uuid.UUID, fiscalYear int) (*extraction.FinancialYearRecord, error) {
	query := `
		SELECT id, client_id, practice_id, upload_id, fiscal_year, fiscal_year_end, period_months,
		       revenue, cost_of_sales, gross_profit, gross_margin_pct, operating_expenses,
		       ebitda, ebitda_margin_pct, depreciation, amortisation, interest, tax,
		       net_profit, net_margin_pct, total_assets, current_assets, fixed_assets,
		       total_liabilities, current_liabilities, long_term_liabilities, net_assets,
		       debtors, creditors, stock, cash, debtor_days, creditor_days,
		       employee_count, revenue_per_employee, data_source, confidence, notes,
		       created_at, updated_at
		FROM financial_years
		WHERE client_id = $1 AND fiscal_year = $2`

	rec := &extraction.FinancialYearRecord{}
	err := r.db.QueryRow(ctx, query, clientID, fiscalYear).Scan(
		&rec.ID,
		&rec.ClientID,
		&rec.PracticeID,
		&rec.UploadID,
		&rec.FiscalYear,
		&rec.FiscalYearEnd,
		&rec.PeriodMonths,
		&rec.Revenue,
		&rec.CostOfSales,
		&rec.GrossProfit,
		&rec.GrossMarginPct,
		&rec.OperatingExpenses,
		&rec.EBITDA,
		&rec.EBITDAMarginPct,
		&rec.Depreciation,
		&rec.Amortisation,
		&rec.Interest,
		&rec.Tax,
		&rec.NetProfit,
		&rec.NetMarginPct,
		&rec.TotalAssets,
		&rec.CurrentAssets,
		&rec.FixedAssets,
		&rec.TotalLiabilities,
		&rec.CurrentLiabilities,
		&rec.LongTermLiabilities,
		&rec.NetAssets,
		&rec.Debtors,
		&rec.Creditors,
		&rec.Stock,
		&rec.Cash,
		&rec.DebtorDays,
		&rec.CreditorDays,
		&rec.EmployeeCount,
		&rec.RevenuePerEmployee,
		&rec.DataSource,
		&rec.Confidence,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get financial year: %w", err)
	}
	return rec, nil
}
