package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ai-server/internal/usecase"
)

const maxBodyBytes = 1 << 20

// CompletionProxy forwards chat completion requests upstream.
type CompletionProxy interface {
	Complete(ctx context.Context, in usecase.CompleteInput) (usecase.CompleteOutput, error)
}

// InvoiceExtractor runs the prefill extraction flow.
type InvoiceExtractor interface {
	Extract(ctx context.Context, in usecase.ExtractInput) (usecase.ExtractOutput, error)
}

// Server exposes the HTTP endpoints of the AI server.
type Server struct {
	completions CompletionProxy
	prefill     InvoiceExtractor
	mux         *http.ServeMux
}

// New constructs the server with routes configured.
func New(completions CompletionProxy, prefill InvoiceExtractor) (*Server, error) {
	if completions == nil {
		return nil, errors.New("handler: completion proxy must not be nil")
	}
	if prefill == nil {
		return nil, errors.New("handler: invoice extractor must not be nil")
	}
	s := &Server{
		completions: completions,
		prefill:     prefill,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with request logging applied.
func (s *Server) Router() http.Handler {
	return WithRequestLog(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/v1/prefill", s.handlePrefill)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.completions.Complete(r.Context(), usecase.CompleteInput{Body: body})
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	// Mirror the provider response: same status, same payload.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.Status)
	_, _ = w.Write(out.Payload)
}

type prefillRequest struct {
	EmailText string `json:"email_text"`
	Model     string `json:"model"`
}

type prefillResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handlePrefill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req prefillRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writePrefillError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.prefill.Extract(r.Context(), usecase.ExtractInput{
		EmailText: req.EmailText,
		Model:     req.Model,
	})
	if err != nil {
		status, msg := mapError(err)
		writePrefillError(w, status, msg)
		return
	}

	// Parse failures also land here with Success=false and a 200 status:
	// the service worked, extraction did not.
	writeJSON(w, http.StatusOK, prefillResponse{Success: out.Success, Message: out.Message})
}

// mapError converts a usecase error into an HTTP status and message.
func mapError(err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, "internal error"
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, ucErr.Reason
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, ucErr.Reason
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, upstreamMessage(ucErr)
	case usecase.ErrorStorage:
		return http.StatusInternalServerError, ucErr.Reason
	default:
		return http.StatusInternalServerError, ucErr.Reason
	}
}

// upstreamMessage includes the provider diagnostic so callers can see why the
// upstream call failed.
func upstreamMessage(ucErr *usecase.Error) string {
	if ucErr.Err != nil {
		return "upstream error: " + ucErr.Err.Error()
	}
	return "upstream error"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writePrefillError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, prefillResponse{Success: false, Message: msg})
}
