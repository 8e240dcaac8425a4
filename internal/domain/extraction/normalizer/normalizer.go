// Package normalizer parses the extraction model's raw text response and
// coerces it into canonical ExtractedFinancialData records. Wrapper stripping
// and JSON repair are deliberately separate from schema coercion so new field
// aliases never touch the parsing logic.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
)

// DefaultConfidence is assumed when the model omits a confidence score
const DefaultConfidence = 0.5

// fieldAliases maps model-reported field names onto the canonical schema
var fieldAliases = map[string]string{
	"turnover":           "revenue",
	"overheads":          "operating_expenses",
	"trade_debtors":      "debtors",
	"receivables":        "debtors",
	"trade_creditors":    "creditors",
	"payables":           "creditors",
	"cash_at_bank":       "cash",
	"tangible_assets":    "fixed_assets",
	"shareholders_funds": "net_assets",
	"profit_after_tax":   "net_profit",
	"corporation_tax":    "tax",
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// Normalize parses raw model output into one record per fiscal year.
// fallbackYear fills in a missing fiscal_year (caller passes the upload's
// year hint, or the current calendar year).
func Normalize(raw string, fallbackYear int) ([]extraction.ExtractedFinancialData, error) {
	payload := stripCodeFence(raw)
	payload = trailingCommaRe.ReplaceAllString(payload, "$1")

	entries, err := parseYearEntries(payload)
	if err != nil {
		// second chance: structural repair of near-JSON
		if repaired, repErr := jsonrepair.RepairJSON(payload); repErr == nil {
			entries, err = parseYearEntries(repaired)
		}
		if err != nil {
			return nil, &extraction.MalformedExtractionError{RawResponse: raw, Err: err}
		}
	}

	if len(entries) == 0 {
		return nil, &extraction.MalformedExtractionError{RawResponse: raw, Err: fmt.Errorf("response contained no fiscal years")}
	}

	records := make([]extraction.ExtractedFinancialData, 0, len(entries))
	for _, entry := range entries {
		records = append(records, coerceYear(entry, fallbackYear))
	}
	return records, nil
}

// parseYearEntries accepts the three tolerated payload shapes: an object
// with a "years" array, a bare array, or a single bare object.
func parseYearEntries(payload string) ([]map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, err
	}

	switch v := decoded.(type) {
	case []any:
		return objectSlice(v)
	case map[string]any:
		if years, ok := v["years"].([]any); ok {
			return objectSlice(years)
		}
		return []map[string]any{v}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON shape %T", decoded)
	}
}

func objectSlice(items []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("year entry is %T, expected object", item)
		}
		out = append(out, obj)
	}
	return out, nil
}

// coerceYear maps one parsed year object onto the canonical record,
// resolving aliases and filling defaults.
func coerceYear(m map[string]any, fallbackYear int) extraction.ExtractedFinancialData {
	for alias, canonical := range fieldAliases {
		if _, has := m[canonical]; !has {
			if v, ok := m[alias]; ok && v != nil {
				m[canonical] = v
			}
		}
	}

	d := extraction.ExtractedFinancialData{
		PeriodMonths: 12,
		Confidence:   DefaultConfidence,
		Notes:        []string{},
	}

	if fy := toInt(m["fiscal_year"]); fy != nil {
		d.FiscalYear = *fy
	} else {
		d.FiscalYear = fallbackYear
		d.Notes = append(d.Notes, fmt.Sprintf("fiscal year not stated in extraction; assumed %d", fallbackYear))
	}

	if fye := toString(m["fiscal_year_end"]); fye != "" {
		d.FiscalYearEnd = &fye
	}
	if pm := toInt(m["period_months"]); pm != nil && *pm > 0 {
		d.PeriodMonths = *pm
	}
	if c := toFloat(m["confidence"]); c != nil {
		d.Confidence = clamp(*c, 0, 1)
	}
	for _, n := range toStringSlice(m["notes"]) {
		d.Notes = append(d.Notes, n)
	}

	d.Revenue = toFloat(m["revenue"])
	d.CostOfSales = absFloat(toFloat(m["cost_of_sales"]))
	d.GrossProfit = toFloat(m["gross_profit"])
	d.GrossMarginPct = toFloat(m["gross_margin_pct"])
	d.OperatingExpenses = absFloat(toFloat(m["operating_expenses"]))
	d.EBITDA = toFloat(m["ebitda"])
	d.EBITDAMarginPct = toFloat(m["ebitda_margin_pct"])
	d.Depreciation = toFloat(m["depreciation"])
	d.Amortisation = toFloat(m["amortisation"])
	d.Interest = toFloat(m["interest"])
	d.Tax = toFloat(m["tax"])
	d.NetProfit = toFloat(m["net_profit"])
	d.NetMarginPct = toFloat(m["net_margin_pct"])
	d.TotalAssets = toFloat(m["total_assets"])
	d.CurrentAssets = toFloat(m["current_assets"])
	d.FixedAssets = toFloat(m["fixed_assets"])
	d.TotalLiabilities = toFloat(m["total_liabilities"])
	d.CurrentLiabilities = toFloat(m["current_liabilities"])
	d.LongTermLiabilities = toFloat(m["long_term_liabilities"])
	d.NetAssets = toFloat(m["net_assets"])
	d.Debtors = toFloat(m["debtors"])
	d.Creditors = toFloat(m["creditors"])
	d.Stock = toFloat(m["stock"])
	d.Cash = toFloat(m["cash"])
	d.DebtorDays = toFloat(m["debtor_days"])
	d.CreditorDays = toFloat(m["creditor_days"])
	d.EmployeeCount = toInt(m["employee_count"])
	d.RevenuePerEmployee = toFloat(m["revenue_per_employee"])

	return d
}

// stripCodeFence removes an optional ```json ... ``` (or bare ```) wrapper
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && len(strings.TrimSpace(s[:nl])) <= len("json") {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func toFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		cleaned := strings.TrimSpace(t)
		cleaned = strings.Trim(cleaned, "£$€")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		if cleaned == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return &f
		}
	}
	return nil
}

func toInt(v any) *int {
	f := toFloat(v)
	if f == nil {
		return nil
	}
	i := int(math.Round(*f))
	return &i
}

func toString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func absFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	a := math.Abs(*v)
	return &a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
