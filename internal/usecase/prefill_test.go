package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ai-server/internal/domain"
	"ai-server/internal/integrations/llm"
)

type mockStore struct {
	appended []domain.InvoiceRecord
	err      error
}

func (m *mockStore) AppendRecord(_ context.Context, record domain.InvoiceRecord) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, record)
	return nil
}

func newTestPrefill(t *testing.T, router LLMRouter, store RecordStore) *PrefillService {
	t.Helper()
	svc, err := NewPrefillService(router, store, "gpt-5-mini")
	require.NoError(t, err)
	return svc
}

func TestNewPrefillService_ValidatesDependencies(t *testing.T) {
	_, err := NewPrefillService(nil, &mockStore{}, "gpt-5-mini")
	require.Error(t, err)

	_, err = NewPrefillService(&mockRouter{}, nil, "gpt-5-mini")
	require.Error(t, err)
}

func TestExtract_HappyPath(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":500,"currency":"USD","due_date":"2025-08-31","description":null,"company":null,"contact":"billing@acme.com"}`}
	store := &mockStore{}
	svc := newTestPrefill(t, router, store)

	out, err := svc.Extract(context.Background(), ExtractInput{
		EmailText: "Invoice #123: Amount $500 due by 2025-08-31. Contact billing@acme.com",
		Model:     "gpt-5-mini",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "data extracted and written", out.Message)

	require.Len(t, store.appended, 1)
	require.Equal(t, domain.InvoiceRecord{
		Amount:   "500",
		Currency: "USD",
		DueDate:  "2025-08-31",
		Contact:  "billing@acme.com",
	}, store.appended[0])
}

func TestExtract_EmptyEmailText(t *testing.T) {
	router := &mockRouter{}
	svc := newTestPrefill(t, router, &mockStore{})

	_, err := svc.Extract(context.Background(), ExtractInput{EmailText: "   "})
	expectUsecaseError(t, err, ErrorInvalidInput, "empty_email_text")
	require.Zero(t, router.chatCalls)
}

func TestExtract_DefaultsModel(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":"1"}`}
	svc := newTestPrefill(t, router, &mockStore{})

	_, err := svc.Extract(context.Background(), ExtractInput{EmailText: "Pay 1 EUR"})
	require.NoError(t, err)
	require.Equal(t, "gpt-5-mini", router.chatModel)
	require.Equal(t, 1000, router.chatMaxTokens)
}

func TestExtract_PromptShape(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":"1"}`}
	svc := newTestPrefill(t, router, &mockStore{})

	_, err := svc.Extract(context.Background(), ExtractInput{EmailText: "Invoice from Acme", Model: "qwen/qwen3-235b-a22b:free"})
	require.NoError(t, err)
	require.Equal(t, "qwen/qwen3-235b-a22b:free", router.chatModel)

	require.Len(t, router.chatMessages, 2)
	system := router.chatMessages[0]
	require.Equal(t, domain.RoleSystem, system.Role)
	require.Contains(t, system.Content, "amount, currency, due_date, description, company, contact")
	require.Contains(t, system.Content, "due_date must be YYYY-MM-DD")

	user := router.chatMessages[1]
	require.Equal(t, domain.RoleUser, user.Role)
	require.Contains(t, user.Content, "Invoice from Acme")
	require.Contains(t, user.Content, "Example JSON:")
}

func TestExtract_AllFieldsAbsentStillSucceeds(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":"","currency":"","due_date":"","description":"","company":"","contact":""}`}
	store := &mockStore{}
	svc := newTestPrefill(t, router, store)

	out, err := svc.Extract(context.Background(), ExtractInput{EmailText: "Hello, just checking in."})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, store.appended, 1)
	require.Equal(t, domain.InvoiceRecord{}, store.appended[0])
}

func TestExtract_ParseFailureIsNotAnError(t *testing.T) {
	router := &mockRouter{chatAnswer: "I could not find any billing information in this email."}
	store := &mockStore{}
	svc := newTestPrefill(t, router, store)

	out, err := svc.Extract(context.Background(), ExtractInput{EmailText: "Lunch on Friday?"})
	require.NoError(t, err)
	require.False(t, out.Success)
	require.NotEmpty(t, out.Message)
	require.Empty(t, store.appended)
}

func TestExtract_UpstreamErrors(t *testing.T) {
	store := &mockStore{}

	svc := newTestPrefill(t, &mockRouter{chatErr: &llm.HTTPStatusError{StatusCode: http.StatusInternalServerError}}, store)
	_, err := svc.Extract(context.Background(), ExtractInput{EmailText: "Invoice"})
	expectUsecaseError(t, err, ErrorUpstream, "provider_error")

	svc = newTestPrefill(t, &mockRouter{chatErr: &llm.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}, store)
	_, err = svc.Extract(context.Background(), ExtractInput{EmailText: "Invoice"})
	expectUsecaseError(t, err, ErrorRateLimited, "provider_rate_limited")

	require.Empty(t, store.appended)
}

func TestExtract_StoreError(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":"5"}`}
	svc := newTestPrefill(t, router, &mockStore{err: errors.New("disk full")})

	_, err := svc.Extract(context.Background(), ExtractInput{EmailText: "Invoice for 5"})
	expectUsecaseError(t, err, ErrorStorage, "store_append_error")
}

func TestExtract_NoDeduplication(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":"500","currency":"USD"}`}
	store := &mockStore{}
	svc := newTestPrefill(t, router, store)

	in := ExtractInput{EmailText: "Invoice #123: Amount $500"}
	for i := 0; i < 2; i++ {
		out, err := svc.Extract(context.Background(), in)
		require.NoError(t, err)
		require.True(t, out.Success)
	}
	require.Len(t, store.appended, 2)
	require.Equal(t, store.appended[0], store.appended[1])
}

func TestExtract_LongEmailForwardedVerbatim(t *testing.T) {
	router := &mockRouter{chatAnswer: `{"amount":"1"}`}
	svc := newTestPrefill(t, router, &mockStore{})

	email := strings.Repeat("Invoice detail line.\n", 200)
	_, err := svc.Extract(context.Background(), ExtractInput{EmailText: email})
	require.NoError(t, err)
	require.Contains(t, router.chatMessages[1].Content, "Invoice detail line.")
}
