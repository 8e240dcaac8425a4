// Package recoverer reconstructs readable text from uploaded document bytes.
// It is a chain of best-effort extraction passes: a pass that fails or finds
// nothing contributes no fragments but never aborts the chain.
package recoverer

import (
	"regexp"
	"strings"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction"
)

// NoStructuredDataSentinel is returned for spreadsheet containers when no
// recognizable fragment could be found.
const NoStructuredDataSentinel = "no structured data found"

// Quality gate thresholds for recovered PDF text (enforced by the caller).
const (
	MinTextLength       = 100
	KeywordFreeMinChars = 500
)

var financialKeywords = []string{
	"revenue", "turnover", "profit", "loss", "assets", "liabilities",
	"balance", "cash", "debtors", "creditors",
}

// groupedNumberRe matches 3-digit-grouped figures like 1,234,567
var groupedNumberRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+`)

// RecoverText produces a best-effort plain-text reconstruction of the
// document's visible content. It never fails on malformed input; it returns
// as much text as is recoverable, possibly empty.
func RecoverText(data []byte, containerType extraction.ContainerType) string {
	switch containerType {
	case extraction.ContainerPDF:
		return recoverPDFText(data)
	case extraction.ContainerSpreadsheet:
		return recoverSpreadsheetText(data)
	default:
		// Delimited text is forwarded unchanged; the extraction model does
		// the tabular interpretation.
		return string(data)
	}
}

// ContainsFinancialKeyword reports whether the text mentions a financial
// term, a currency symbol, or a 3-digit-grouped number.
func ContainsFinancialKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range financialKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if strings.ContainsAny(text, "£$€") {
		return true
	}
	return groupedNumberRe.MatchString(text)
}

// MeetsQualityGate reports whether recovered PDF text is substantial enough
// to forward to the extraction model: at least MinTextLength characters, and
// either a financial keyword or KeywordFreeMinChars characters overall.
func MeetsQualityGate(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < MinTextLength {
		return false
	}
	return ContainsFinancialKeyword(t) || len(t) >= KeywordFreeMinChars
}

// joinFragments concatenates fragments in discovery order, dropping
// duplicate lines while preserving the first occurrence.
func joinFragments(fragments []string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, frag := range fragments {
		for _, line := range strings.Split(frag, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
