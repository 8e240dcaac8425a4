package recoverer

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"
	"regexp"
	"strings"
)

// The PDF passes work on a single-byte-per-character decode of the file:
// structural syntax is plain ASCII and string payloads survive byte-for-byte,
// so no UTF-8 assumption is made anywhere.

var (
	// (text) Tj  and  [(a) -12 (b)] TJ show-text operators
	showTextOpRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*Tj|\[((?:\\.|[^\\\]])*)\]\s*TJ`)

	// component strings inside a TJ array
	parenStringRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
)

// pdfStream is one stream/endstream body together with its object dictionary
type pdfStream struct {
	dict  string
	body  []byte
	flate bool
}

// recoverPDFText runs the ordered extraction chain over a PDF byte buffer:
// operator-based passes over inflated streams and the raw file, a
// parenthesized-literal pass, and a last-resort printable-run scan.
func recoverPDFText(data []byte) string {
	raw := string(data)
	streams := findStreams(data)

	var inflated []string
	var rawStreams []pdfStream
	for _, s := range streams {
		if !s.flate {
			rawStreams = append(rawStreams, s)
			continue
		}
		if text, ok := inflateStream(s.body); ok {
			inflated = append(inflated, text)
		}
		// a stream that fails to decompress is skipped, not fatal
	}

	var fragments []string

	// Pass 1: show-text operators, inflated streams first, then the raw file
	for _, text := range inflated {
		fragments = append(fragments, extractShowTextOps(text)...)
	}
	fragments = append(fragments, extractShowTextOps(raw)...)

	// Pass 2: parenthesized literals recover labels and metadata the
	// operator passes missed
	for _, text := range inflated {
		fragments = append(fragments, extractStringLiterals(text)...)
	}
	fragments = append(fragments, extractStringLiterals(raw)...)

	// Pass 3: printable runs in uncompressed stream bodies, kept only when
	// they look financial
	for _, s := range rawStreams {
		fragments = append(fragments, extractPrintableRuns(s.body)...)
	}

	return joinFragments(fragments)
}

// findStreams locates every stream/endstream pair and captures the object
// dictionary text immediately preceding the stream keyword.
func findStreams(data []byte) []pdfStream {
	var streams []pdfStream
	offset := 0
	for {
		idx := bytes.Index(data[offset:], []byte("stream"))
		if idx < 0 {
			break
		}
		start := offset + idx

		// skip "endstream" keyword hits
		if start >= 3 && string(data[start-3:start]) == "end" {
			offset = start + len("stream")
			continue
		}

		bodyStart := start + len("stream")
		if bodyStart < len(data) && data[bodyStart] == '\r' {
			bodyStart++
		}
		if bodyStart < len(data) && data[bodyStart] == '\n' {
			bodyStart++
		}

		endIdx := bytes.Index(data[bodyStart:], []byte("endstream"))
		if endIdx < 0 {
			break
		}
		body := data[bodyStart : bodyStart+endIdx]
		// EOL before endstream is not part of the stream data
		body = bytes.TrimSuffix(body, []byte("\n"))
		body = bytes.TrimSuffix(body, []byte("\r"))

		dictStart := start - 512
		if dictStart < 0 {
			dictStart = 0
		}
		dict := string(data[dictStart:start])

		streams = append(streams, pdfStream{
			dict:  dict,
			body:  body,
			flate: strings.Contains(dict, "FlateDecode"),
		})

		offset = bodyStart + endIdx + len("endstream")
	}
	return streams
}

// inflateStream decompresses a FlateDecode stream body, trying raw deflate
// first and the zlib-wrapped variant second.
func inflateStream(body []byte) (string, bool) {
	r := flate.NewReader(bytes.NewReader(body))
	var buf bytes.Buffer
	_, err := io.Copy(&buf, r)
	r.Close()
	if err == nil && buf.Len() > 0 {
		return buf.String(), true
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	buf.Reset()
	_, err = io.Copy(&buf, zr)
	zr.Close()
	if buf.Len() > 0 {
		return buf.String(), true
	}
	_ = err
	return "", false
}

// extractShowTextOps pulls the string payload out of every Tj and TJ
// operator, in document order. Component strings of one TJ array are
// concatenated into a single fragment.
func extractShowTextOps(text string) []string {
	var fragments []string
	for _, loc := range showTextOpRe.FindAllStringSubmatchIndex(text, -1) {
		if loc[2] >= 0 {
			// (text) Tj
			if decoded := decodeLiteral(text[loc[2]:loc[3]]); decoded != "" {
				fragments = append(fragments, decoded)
			}
			continue
		}
		// [(a) -12 (b)] TJ: concatenate component strings
		var b strings.Builder
		for _, inner := range parenStringRe.FindAllStringSubmatch(text[loc[4]:loc[5]], -1) {
			b.WriteString(decodeLiteral(inner[1]))
		}
		if b.Len() > 0 {
			fragments = append(fragments, b.String())
		}
	}
	return fragments
}

// extractStringLiterals keeps parenthesized literals of length >= 3 that
// contain at least two letters or three digits.
func extractStringLiterals(text string) []string {
	var fragments []string
	for _, m := range parenStringRe.FindAllStringSubmatch(text, -1) {
		decoded := decodeLiteral(m[1])
		if len(decoded) < 3 {
			continue
		}
		letters, digits := 0, 0
		for _, r := range decoded {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
				letters++
			case r >= '0' && r <= '9':
				digits++
			}
		}
		if letters >= 2 || digits >= 3 {
			fragments = append(fragments, decoded)
		}
	}
	return fragments
}

// extractPrintableRuns scans a raw stream body for printable-ASCII runs of
// length >= 50 containing a financial keyword, and keeps them verbatim.
func extractPrintableRuns(body []byte) []string {
	const minRun = 50

	var fragments []string
	var run []byte
	flush := func() {
		if len(run) >= minRun && ContainsFinancialKeyword(string(run)) {
			fragments = append(fragments, string(run))
		}
		run = run[:0]
	}
	for _, b := range body {
		if b >= 32 && b <= 126 {
			run = append(run, b)
			continue
		}
		flush()
	}
	flush()
	return fragments
}

// decodeLiteral resolves the standard backslash escapes in a PDF literal
// string: \n \r \t \( \) and \\.
func decodeLiteral(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '(', ')', '\\':
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
