// Package extraction defines the data model and error taxonomy for the
// financial-statement extraction pipeline.
package extraction

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an upload record
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusExtracted  Status = "extracted"
	StatusFailed     Status = "failed"
)

// ContainerType is the declared format of an uploaded document. It selects
// which text-recovery strategy applies.
type ContainerType string

const (
	ContainerPDF         ContainerType = "pdf"
	ContainerSpreadsheet ContainerType = "spreadsheet"
	ContainerCSV         ContainerType = "csv"
)

// DataSourceExtraction tags financial year rows produced by this pipeline
const DataSourceExtraction = "document_extraction"

// UploadRecord is one submitted accounts document. It is created by the
// upload-intake step and advanced exclusively by the pipeline orchestrator.
type UploadRecord struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	PracticeID     uuid.UUID
	StorageKey     string
	ContainerType  ContainerType
	FiscalYearHint *int
	Status         Status
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Confidence     *float64
	FiscalYear     *int
	FiscalYearEnd  *time.Time
	RawExtraction  []byte // full per-year results, retained for audit
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FinancialYearRecord is one (client, fiscal year) row. Re-uploads for the
// same year overwrite rather than duplicate.
type FinancialYearRecord struct {
	ID           uuid.UUID
	ClientID     uuid.UUID
	PracticeID   uuid.UUID
	UploadID     *uuid.UUID
	FiscalYear   int
	PeriodMonths int

	FiscalYearEnd *time.Time

	Revenue             *float64
	CostOfSales         *float64
	GrossProfit         *float64
	GrossMarginPct      *float64
	OperatingExpenses   *float64
	EBITDA              *float64
	EBITDAMarginPct     *float64
	Depreciation        *float64
	Amortisation        *float64
	Interest            *float64
	Tax                 *float64
	NetProfit           *float64
	NetMarginPct        *float64
	TotalAssets         *float64
	CurrentAssets       *float64
	FixedAssets         *float64
	TotalLiabilities    *float64
	CurrentLiabilities  *float64
	LongTermLiabilities *float64
	NetAssets           *float64
	Debtors             *float64
	Creditors           *float64
	Stock               *float64
	Cash                *float64
	DebtorDays          *float64
	CreditorDays        *float64
	EmployeeCount       *int
	RevenuePerEmployee  *float64

	DataSource string
	Confidence float64
	Notes      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExtractedFinancialData is the normalizer's per-year output. It is never
// persisted directly; derived-metric computation runs first.
type ExtractedFinancialData struct {
	FiscalYear    int     `json:"fiscal_year"`
	FiscalYearEnd *string `json:"fiscal_year_end,omitempty"`
	PeriodMonths  int     `json:"period_months"`

	Revenue             *float64 `json:"revenue"`
	CostOfSales         *float64 `json:"cost_of_sales"`
	GrossProfit         *float64 `json:"gross_profit"`
	GrossMarginPct      *float64 `json:"gross_margin_pct,omitempty"`
	OperatingExpenses   *float64 `json:"operating_expenses"`
	EBITDA              *float64 `json:"ebitda"`
	EBITDAMarginPct     *float64 `json:"ebitda_margin_pct,omitempty"`
	Depreciation        *float64 `json:"depreciation"`
	Amortisation        *float64 `json:"amortisation"`
	Interest            *float64 `json:"interest"`
	Tax                 *float64 `json:"tax"`
	NetProfit           *float64 `json:"net_profit"`
	NetMarginPct        *float64 `json:"net_margin_pct,omitempty"`
	TotalAssets         *float64 `json:"total_assets"`
	CurrentAssets       *float64 `json:"current_assets"`
	FixedAssets         *float64 `json:"fixed_assets"`
	TotalLiabilities    *float64 `json:"total_liabilities"`
	CurrentLiabilities  *float64 `json:"current_liabilities"`
	LongTermLiabilities *float64 `json:"long_term_liabilities"`
	NetAssets           *float64 `json:"net_assets"`
	Debtors             *float64 `json:"debtors"`
	Creditors           *float64 `json:"creditors"`
	Stock               *float64 `json:"stock"`
	Cash                *float64 `json:"cash"`
	DebtorDays          *float64 `json:"debtor_days,omitempty"`
	CreditorDays        *float64 `json:"creditor_days,omitempty"`
	EmployeeCount       *int     `json:"employee_count"`
	RevenuePerEmployee  *float64 `json:"revenue_per_employee,omitempty"`

	Confidence float64  `json:"confidence"`
	Notes      []string `json:"notes"`
}
