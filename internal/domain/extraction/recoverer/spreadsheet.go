package recoverer

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// labelled amounts like "Revenue: £610,000" or "Gross profit  398000"
	labelledAmountRe = regexp.MustCompile(`(?i)\b(?:revenue|turnover|sales|profit|loss|ebitda|margin|cost|expense|overhead|asset|liabilit(?:y|ies)|debtors?|creditors?)\b[^\r\n<>]{0,40}?[:\s][ \t]*[£$€]?-?\d[\d,]*(?:\.\d+)?`)

	// cell value fragments in embedded sheet XML, e.g. <v>610000</v>
	valueTagRe = regexp.MustCompile(`<v>([^<]{1,64})</v>`)
)

// recoverSpreadsheetText recovers text from a spreadsheet container. A
// well-formed workbook is read cell by cell; anything else falls back to a
// regex scan of the raw bytes for labelled amounts and value-tag fragments.
func recoverSpreadsheetText(data []byte) string {
	if text := recoverWorkbook(data); text != "" {
		return text
	}
	return scanSpreadsheetFragments(string(data))
}

// recoverWorkbook reads a real workbook with excelize and renders each row
// as a comma-joined line. Returns "" when the bytes are not a readable
// workbook.
func recoverWorkbook(data []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			var cells []string
			for _, cell := range row {
				if c := strings.TrimSpace(cell); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, ", "))
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// scanSpreadsheetFragments regex-scans UTF-8 text for labelled-amount
// patterns and embedded value-tag fragments.
func scanSpreadsheetFragments(text string) string {
	var fragments []string

	fragments = append(fragments, labelledAmountRe.FindAllString(text, -1)...)

	for _, m := range valueTagRe.FindAllStringSubmatch(text, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			fragments = append(fragments, v)
		}
	}

	if len(fragments) == 0 {
		return NoStructuredDataSentinel
	}
	return joinFragments(fragments)
}
