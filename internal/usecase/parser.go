package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ai-server/internal/domain"
)

// UnparseableError reports that no structured invoice block could be
// recovered from the model output. It is a normal outcome for the extractor,
// not a hard failure, so callers branch on it explicitly.
type UnparseableError struct {
	Reason string
}

func (e *UnparseableError) Error() string {
	return "usecase: unparseable model output: " + e.Reason
}

// ParseInvoiceOutput decomposes raw model output into an InvoiceRecord. It
// tolerates Markdown code fences, curly quotes, prose around the JSON block,
// and missing fields (mapped to empty strings). If no JSON object can be
// recovered it returns *UnparseableError.
func ParseInvoiceOutput(raw string) (domain.InvoiceRecord, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.InvoiceRecord{}, &UnparseableError{Reason: "empty model response"}
	}

	text = stripCodeFences(text)
	text = normalizeQuotes(text)

	if fields, ok := decodeObject(text); ok {
		return canonicalizeRecord(fields), nil
	}

	// The model wrapped the object in prose. Recover the first balanced
	// {...} block and try again.
	if candidate, ok := balancedObject(text); ok {
		if fields, ok := decodeObject(candidate); ok {
			return canonicalizeRecord(fields), nil
		}
	}

	return domain.InvoiceRecord{}, &UnparseableError{Reason: "no JSON object found in model response"}
}

func decodeObject(text string) (map[string]any, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// stripCodeFences removes a surrounding Markdown code fence, e.g.
// ```json {...} ``` becomes {...}.
func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func normalizeQuotes(text string) string {
	r := strings.NewReplacer("“", `"`, "”", `"`, "’", "'")
	return r.Replace(text)
}

// balancedObject returns the first brace-balanced {...} block in text.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// canonicalizeRecord maps the decoded JSON object onto the fixed record
// shape. Missing keys and JSON nulls become empty strings; numeric amounts
// are rendered as decimal strings.
func canonicalizeRecord(fields map[string]any) domain.InvoiceRecord {
	return domain.InvoiceRecord{
		Amount:      stringField(fields, "amount"),
		Currency:    stringField(fields, "currency"),
		DueDate:     stringField(fields, "due_date"),
		Description: stringField(fields, "description"),
		Company:     stringField(fields, "company"),
		Contact:     stringField(fields, "contact"),
	}
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
