package normalizer

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
)

// ComputeDerivedMetrics fills the ratio fields from their base inputs. It is
// idempotent: rerunning it over its own output yields the same values. A
// metric is only computed when every input is present and the denominator is
// non-zero; already-present values are recomputed so stored ratios always
// agree with stored inputs.
func ComputeDerivedMetrics(d *extraction.ExtractedFinancialData) {
	if d.Revenue != nil && *d.Revenue != 0 {
		if d.GrossProfit != nil {
			d.GrossMarginPct = round1(*d.GrossProfit / *d.Revenue * 100)
		}
		if d.EBITDA != nil {
			d.EBITDAMarginPct = round1(*d.EBITDA / *d.Revenue * 100)
		}
		if d.NetProfit != nil {
			d.NetMarginPct = round1(*d.NetProfit / *d.Revenue * 100)
		}
		if d.Debtors != nil {
			v := math.Round(*d.Debtors / *d.Revenue * 365)
			d.DebtorDays = &v
		}
	}

	if d.Revenue != nil && d.EmployeeCount != nil && *d.EmployeeCount != 0 {
		v := math.Round(*d.Revenue / float64(*d.EmployeeCount))
		d.RevenuePerEmployee = &v
	}

	if d.Creditors != nil && d.CostOfSales != nil && *d.CostOfSales != 0 {
		v := math.Round(*d.Creditors / *d.CostOfSales * 365)
		d.CreditorDays = &v
	}
}

// round1 rounds to one decimal place using decimal arithmetic, so stored
// percentages do not drift on recomputation.
func round1(v float64) *float64 {
	r := decimal.NewFromFloat(v).Round(1).InexactFloat64()
	return &r
}
