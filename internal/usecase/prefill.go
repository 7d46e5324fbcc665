package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ai-server/internal/domain"
)

const (
	defaultPrefillModel      = "gpt-5-mini"
	extractionMaxTokens      = 1000
	extractionSuccessMessage = "data extracted and written"
)

// RecordStore persists extracted invoice records. Implementations must make
// each append atomic: a whole row or nothing.
type RecordStore interface {
	AppendRecord(ctx context.Context, record domain.InvoiceRecord) error
}

// PrefillService extracts invoice fields from raw email text via the LLM and
// appends one record per successful extraction to the store.
type PrefillService struct {
	router       LLMRouter
	store        RecordStore
	defaultModel string
}

type ExtractInput struct {
	EmailText string
	Model     string
}

// ExtractOutput is the documented prefill response contract. A parse failure
// is a Success=false output, not an error: the service worked but extraction
// failed.
type ExtractOutput struct {
	Success bool
	Message string
}

func NewPrefillService(router LLMRouter, store RecordStore, defaultModel string) (*PrefillService, error) {
	if router == nil {
		return nil, errors.New("usecase: llm router must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: record store must not be nil")
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = defaultPrefillModel
	}
	return &PrefillService{router: router, store: store, defaultModel: defaultModel}, nil
}

func (s *PrefillService) Extract(ctx context.Context, in ExtractInput) (ExtractOutput, error) {
	emailText := strings.TrimSpace(in.EmailText)
	if emailText == "" {
		return ExtractOutput{}, newError(ErrorInvalidInput, "empty_email_text", nil)
	}
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = s.defaultModel
	}

	raw, err := s.router.ChatJSON(ctx, model, buildExtractionMessages(emailText), extractionMaxTokens)
	if err != nil {
		if code, ok := upstreamStatusCode(err); ok && code == http.StatusTooManyRequests {
			return ExtractOutput{}, newError(ErrorRateLimited, "provider_rate_limited", err)
		}
		return ExtractOutput{}, newError(ErrorUpstream, "provider_error", err)
	}

	record, err := ParseInvoiceOutput(raw)
	if err != nil {
		var unparseable *UnparseableError
		if errors.As(err, &unparseable) {
			return ExtractOutput{Success: false, Message: unparseable.Reason}, nil
		}
		return ExtractOutput{}, newError(ErrorInternal, "parser_error", err)
	}

	if err := s.store.AppendRecord(ctx, record); err != nil {
		return ExtractOutput{}, newError(ErrorStorage, "store_append_error", err)
	}

	return ExtractOutput{Success: true, Message: extractionSuccessMessage}, nil
}
