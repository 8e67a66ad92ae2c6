package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vrcrugby/subgate/internal/mercadopago"
	"github.com/vrcrugby/subgate/internal/platform/middleware"
	"github.com/vrcrugby/subgate/internal/platform/telemetry"
)

const maxRequestBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// Gateway is the subset of the Mercado Pago client the handlers forward to.
type Gateway interface {
	CreatePreapproval(ctx context.Context, body any) (json.RawMessage, error)
	GetPreapproval(ctx context.Context, id string) (json.RawMessage, error)
	UpdatePreapproval(ctx context.Context, id string, body any) (json.RawMessage, error)
	SearchPreapprovals(ctx context.Context, params url.Values) (json.RawMessage, error)
	SearchAuthorizedPayments(ctx context.Context, params url.Values) (json.RawMessage, error)
}

// Handler serves the subscription endpoints.
type Handler struct {
	gateway Gateway
	opts    Options
	logger  *slog.Logger
}

func NewHandler(gateway Gateway, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Handler{gateway: gateway, opts: opts, logger: logger}
}

// RegisterRoutes mounts the subscription endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /subscriptions", h.HandleCreate)
	mux.HandleFunc("GET /subscriptions", h.HandleSearch)
	mux.HandleFunc("GET /subscriptions/{id}", h.HandleGet)
	mux.HandleFunc("PUT /subscriptions/{id}", h.HandleUpdate)
	mux.HandleFunc("PUT /subscriptions/{id}/amount", h.HandleUpdateAmount)
	mux.HandleFunc("GET /subscriptions/{id}/payments", h.HandleListPayments)
}

// HandleCreate creates a subscription without a plan.
// POST /subscriptions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := req.Build(h.opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	raw, err := h.gateway.CreatePreapproval(r.Context(), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusCreated, raw)
}

// HandleGet returns a subscription by id. A remote 404 stays a 404.
// GET /subscriptions/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw, err := h.gateway.GetPreapproval(r.Context(), r.PathValue("id"))
	if mercadopago.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":          err.Error(),
			"correlation_id": middleware.GetRequestID(r.Context()),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// HandleUpdate forwards the fields that were set.
// PUT /subscriptions/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := req.Build(h.opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.update(w, r, body)
}

// HandleUpdateAmount changes the recurring amount.
// PUT /subscriptions/{id}/amount
func (h *Handler) HandleUpdateAmount(w http.ResponseWriter, r *http.Request) {
	var req AmountUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := req.Build(h.opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.update(w, r, body)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, body *PreapprovalBody) {
	raw, err := h.gateway.UpdatePreapproval(r.Context(), r.PathValue("id"), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// HandleSearch searches subscriptions by payer email, status or ambassador.
// GET /subscriptions
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params, err := ParseSearch(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	raw, err := h.gateway.SearchPreapprovals(r.Context(), params.Values())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// HandleListPayments lists the authorized payments (invoices) of a subscription.
// GET /subscriptions/{id}/payments
func (h *Handler) HandleListPayments(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.writeError(w, r, mercadopago.ErrIDRequired)
		return
	}

	params := url.Values{"preapproval_id": {id}}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		params.Set("status", status)
	}

	raw, err := h.gateway.SearchAuthorizedPayments(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// writeError maps err to a status code. Remote error responses become a 400
// whose message keeps the remote body; failures to reach the API are a 502.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := middleware.GetRequestID(r.Context())

	var validationErr *ValidationError
	var apiErr *mercadopago.RemoteAPIError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          validationErr.Error(),
			"correlation_id": correlationID,
		})
	case errors.Is(err, errInvalidBody), errors.Is(err, mercadopago.ErrIDRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          err.Error(),
			"correlation_id": correlationID,
		})
	case errors.As(err, &apiErr):
		h.logger.Warn("mercadopago rejected request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_status", apiErr.StatusCode,
			"remote_body", apiErr.Body,
			"correlation_id", correlationID,
		)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":          apiErr.Error(),
			"remote_status":  apiErr.StatusCode,
			"correlation_id": correlationID,
		})
	default:
		h.logger.Error("mercadopago request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"correlation_id", correlationID,
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":          "payment processor unavailable",
			"correlation_id": correlationID,
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errInvalidBody
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
