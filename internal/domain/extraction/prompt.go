package extraction

import (
	"fmt"
	"strings"
)

// MaxPromptChars bounds the document text forwarded to the provider,
// favoring the head of the document.
const MaxPromptChars = 15000

// SystemPrompt frames the extraction task for the completion provider.
const SystemPrompt = "You are a financial data extraction assistant for an accountancy practice. " +
	"You read text recovered from company accounts documents and return structured JSON only, with no commentary."

// BuildExtractionPrompt constructs the deterministic instruction prompt for
// one extraction run. The year hint is a disambiguation aid only, never an
// override of what the document says.
func BuildExtractionPrompt(text string, yearHint *int) string {
	if len(text) > MaxPromptChars {
		text = text[:MaxPromptChars]
	}

	var b strings.Builder
	b.WriteString("Extract financial data from the accounts document text below.\n\n")
	b.WriteString("The document may contain figures for MULTIPLE fiscal years (comparative accounts). Extract every year present.\n")
	if yearHint != nil {
		fmt.Fprintf(&b, "The uploader indicated the accounts relate to fiscal year %d. Use this only to disambiguate unlabelled periods; if the document clearly states different years, trust the document.\n", *yearHint)
	}
	b.WriteString(`
Return a JSON object with a "years" array, one element per fiscal year, newest first. Each element must have exactly these fields, using null where the document does not state a value:

{
  "fiscal_year": integer (required),
  "fiscal_year_end": "YYYY-MM-DD" or null,
  "period_months": integer (12 unless the document states a short or long period),
  "revenue": number,
  "cost_of_sales": number,
  "gross_profit": number,
  "operating_expenses": number,
  "ebitda": number,
  "depreciation": number,
  "amortisation": number,
  "interest": number,
  "tax": number,
  "net_profit": number,
  "total_assets": number or null,
  "current_assets": number or null,
  "fixed_assets": number or null,
  "total_liabilities": number or null,
  "current_liabilities": number or null,
  "long_term_liabilities": number or null,
  "net_assets": number or null,
  "debtors": number or null,
  "creditors": number or null,
  "stock": number or null,
  "cash": number or null,
  "employee_count": integer or null,
  "confidence": number between 0 and 1,
  "notes": array of strings explaining assumptions or ambiguities
}

Profit-and-loss fields are required where the document states them; balance-sheet fields and employee_count are optional. Report amounts as plain numbers without currency symbols or thousands separators. Respond with the JSON object only.

Document text:
`)
	b.WriteString(text)
	return b.String()
}
