package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"

	"riskgate/decision-api/internal/domain"
	"riskgate/decision-api/internal/observability"
	"riskgate/decision-api/internal/scoring"
)

const (
	// MaxBatchSize caps the number of transactions in one batch request.
	MaxBatchSize = 1000

	maxBodyBytes      = 1 << 20
	maxBatchBodyBytes = 8 << 20

	metricsSource = "api"
)

// Sink receives an event for every transaction the handler scores.
// Publish must not block the request.
type Sink interface {
	Publish(event domain.DecisionEvent)
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	engine  *scoring.Engine
	metrics *observability.Metrics
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler wired to the given dependencies.
// metrics may be nil, in which case /metrics is not mounted.
func NewHandler(e *scoring.Engine, m *observability.Metrics, sinks ...Sink) *Handler {
	return &Handler{
		engine:  e,
		metrics: m,
		sinks:   sinks,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// WithLogger replaces the handler's logger and returns the handler.
func (h *Handler) WithLogger(l *slog.Logger) *Handler {
	h.logger = l
	return h
}

// ─── GET /health ──────────────────────────────────────────────────────────────

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"status": "ok"})
}

// ─── GET /config ──────────────────────────────────────────────────────────────

// GetConfig returns the rule set the service is scoring with.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	ok(w, h.engine.Rules())
}

// ─── POST /transaction ────────────────────────────────────────────────────────

// ScoreTransaction scores a single transaction synchronously and returns the
// decision, score and reasons.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		tooLarge(w, fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
		return
	}

	req, err := decodeTransaction(body)
	if err != nil {
		h.writeDecodeError(w, err, "")
		return
	}

	ok(w, h.score(req))
}

// ─── POST /transactions/batch ─────────────────────────────────────────────────

// ScoreBatch scores a JSON array of transactions and returns the results in
// request order. Any invalid element rejects the whole request.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes))
	if err != nil {
		tooLarge(w, fmt.Sprintf("request body exceeds %d bytes", maxBatchBodyBytes))
		return
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			unprocessable(w, "body must be a JSON array of transactions")
			return
		}
		badRequest(w, codeInvalidJSON, "request body must be valid JSON")
		return
	}
	if len(items) > MaxBatchSize {
		tooLarge(w, fmt.Sprintf("batch holds %d transactions, the limit is %d", len(items), MaxBatchSize))
		return
	}

	requests := make([]domain.TransactionRequest, len(items))
	for i, item := range items {
		req, err := decodeTransaction(item)
		if err != nil {
			h.writeDecodeError(w, err, fmt.Sprintf("transactions[%d]: ", i))
			return
		}
		requests[i] = req
	}

	results := make([]domain.TransactionResponse, len(requests))
	for i, req := range requests {
		results[i] = h.score(req)
	}
	ok(w, results)
}

// ─── Scoring ──────────────────────────────────────────────────────────────────

func (h *Handler) score(req domain.TransactionRequest) domain.TransactionResponse {
	result := h.engine.Assess(req.Resolve())
	id := *req.TransactionID

	if h.metrics != nil {
		h.metrics.Observe(metricsSource, result)
	}
	h.logger.Debug("transaction scored",
		"transaction_id", id,
		"decision", result.Decision,
		"risk_score", result.RiskScore,
	)

	if len(h.sinks) > 0 {
		event := domain.DecisionEvent{
			EventID:       uuid.NewString(),
			Event:         domain.EventDecisionMade,
			TransactionID: id,
			Result:        result,
			OccurredAt:    h.now().UTC(),
		}
		for _, s := range h.sinks {
			s.Publish(event)
		}
	}

	return domain.TransactionResponse{
		TransactionID: id,
		Decision:      result.Decision,
		RiskScore:     result.RiskScore,
		Reasons:       result.Reasons,
	}
}

// ─── Binding ──────────────────────────────────────────────────────────────────

// errMalformed marks a body that is not parseable JSON at all.
var errMalformed = errors.New("malformed JSON")

// decodeTransaction parses and validates one transaction object.
// Syntax errors wrap errMalformed; everything else is a validation failure.
func decodeTransaction(raw []byte) (domain.TransactionRequest, error) {
	var req domain.TransactionRequest
	if !json.Valid(raw) {
		return req, errMalformed
	}
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		return req, &domain.ValidationError{Field: "body", Message: "must be a JSON object"}
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return req, verr
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return req, &domain.ValidationError{
				Field:   typeErr.Field,
				Message: "must be a JSON " + jsonKind(typeErr.Type),
			}
		}
		// Only amount_mxn carries its own decoder.
		return req, &domain.ValidationError{Field: "amount_mxn", Message: "must be a number"}
	}
	if req.TransactionID == nil {
		return req, &domain.ValidationError{Field: "transaction_id", Message: "is required"}
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, err error, prefix string) {
	if errors.Is(err, errMalformed) {
		badRequest(w, codeInvalidJSON, prefix+"request body must be valid JSON")
		return
	}
	unprocessable(w, prefix+err.Error())
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		return "integer"
	case reflect.String:
		return "string"
	case reflect.Slice:
		return "array"
	default:
		return "number"
	}
}
