package usecase

import (
	"strings"

	"ai-server/internal/domain"
)

// buildExtractionMessages constructs the fixed two-message prompt that asks
// the model for the six billing fields as a single JSON object.
func buildExtractionMessages(emailText string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildExtractionContract()},
		{Role: domain.RoleUser, Content: buildExtractionInput(emailText)},
	}
}

func buildExtractionContract() string {
	return strings.Join([]string{
		"Extract structured billing fields from the email.",
		"Return ONLY a single JSON object with exactly these keys:",
		"amount, currency, due_date, description, company, contact.",
		"If unknown, use an empty string.",
		"due_date must be YYYY-MM-DD; amount must be numeric characters only (no currency symbols).",
		"No code fences, no extra text.",
	}, " ")
}

func buildExtractionInput(emailText string) string {
	return strings.Join([]string{
		"Email:",
		"---",
		emailText,
		"---",
		"",
		"Example JSON:",
		`{"amount":"123.45","currency":"EUR","due_date":"2025-08-31","description":"August invoice for cloud services","company":"Acme GmbH","contact":"billing@acme.com"}`,
	}, "\n")
}
