package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestComputeDerivedMetrics_Margins(t *testing.T) {
	d := extraction.ExtractedFinancialData{
		FiscalYear:  2024,
		Revenue:     fptr(610000),
		CostOfSales: fptr(212000),
		GrossProfit: fptr(398000),
		EBITDA:      fptr(91500),
		NetProfit:   fptr(-5000),
	}

	ComputeDerivedMetrics(&d)

	require.NotNil(t, d.GrossMarginPct)
	assert.Equal(t, 65.2, *d.GrossMarginPct)
	require.NotNil(t, d.EBITDAMarginPct)
	assert.Equal(t, 15.0, *d.EBITDAMarginPct)
	require.NotNil(t, d.NetMarginPct)
	assert.Equal(t, -0.8, *d.NetMarginPct)
}

func TestComputeDerivedMetrics_WorkingCapitalDays(t *testing.T) {
	d := extraction.ExtractedFinancialData{
		Revenue:     fptr(610000),
		CostOfSales: fptr(212000),
		Debtors:     fptr(50000),
		Creditors:   fptr(30000),
	}

	ComputeDerivedMetrics(&d)

	require.NotNil(t, d.DebtorDays)
	assert.Equal(t, 30.0, *d.DebtorDays)
	require.NotNil(t, d.CreditorDays)
	assert.Equal(t, 52.0, *d.CreditorDays)
}

func TestComputeDerivedMetrics_RevenuePerEmployee(t *testing.T) {
	d := extraction.ExtractedFinancialData{
		Revenue:       fptr(610000),
		EmployeeCount: iptr(12),
	}

	ComputeDerivedMetrics(&d)

	require.NotNil(t, d.RevenuePerEmployee)
	assert.Equal(t, 50833.0, *d.RevenuePerEmployee)
}

func TestComputeDerivedMetrics_MissingInputs(t *testing.T) {
	tests := []struct {
		name string
		d    extraction.ExtractedFinancialData
	}{
		{"no revenue", extraction.ExtractedFinancialData{GrossProfit: fptr(398000)}},
		{"zero revenue", extraction.ExtractedFinancialData{Revenue: fptr(0), GrossProfit: fptr(398000)}},
		{"no gross profit", extraction.ExtractedFinancialData{Revenue: fptr(610000)}},
		{"zero employees", extraction.ExtractedFinancialData{Revenue: fptr(610000), EmployeeCount: iptr(0)}},
		{"no cost of sales", extraction.ExtractedFinancialData{Creditors: fptr(30000)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ComputeDerivedMetrics(&tt.d)

			assert.Nil(t, tt.d.GrossMarginPct)
			assert.Nil(t, tt.d.RevenuePerEmployee)
			assert.Nil(t, tt.d.CreditorDays)
		})
	}
}

func TestComputeDerivedMetrics_RecomputesStaleValues(t *testing.T) {
	d := extraction.ExtractedFinancialData{
		Revenue:        fptr(610000),
		GrossProfit:    fptr(398000),
		GrossMarginPct: fptr(99.9), // inconsistent with the inputs
	}

	ComputeDerivedMetrics(&d)

	require.NotNil(t, d.GrossMarginPct)
	assert.Equal(t, 65.2, *d.GrossMarginPct, "stored ratios must agree with stored inputs")
}
