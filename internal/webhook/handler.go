package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/vrcrugby/subgate/internal/platform/middleware"
	"github.com/vrcrugby/subgate/internal/platform/telemetry"
)

const maxNotificationBytes = 1 << 20

// Reconsulter re-fetches authoritative state from Mercado Pago.
type Reconsulter interface {
	GetPreapproval(ctx context.Context, id string) (json.RawMessage, error)
	SearchAuthorizedPayments(ctx context.Context, params url.Values) (json.RawMessage, error)
}

// Handler receives Mercado Pago notifications.
type Handler struct {
	verifier *Verifier
	remote   Reconsulter
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewHandler creates a webhook handler. remote and metrics may be nil.
func NewHandler(verifier *Verifier, remote Reconsulter, logger *slog.Logger, metrics *telemetry.Metrics) *Handler {
	if verifier == nil {
		verifier = NewVerifier("")
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Handler{
		verifier: verifier,
		remote:   remote,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterRoutes mounts the notification endpoint on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/mp", h.HandleNotification)
}

// HandleNotification acknowledges a notification and reports whether its
// signature checked out. An invalid signature is reported, never rejected:
// a non-2xx answer makes the processor redeliver indefinitely.
// POST /webhooks/mp
func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          "invalid request body",
			"correlation_id": correlationID,
		})
		return
	}

	notification, err := ParseNotification(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          ErrInvalidPayload.Error(),
			"correlation_id": correlationID,
		})
		return
	}

	topic := notification.EventTopic()
	resourceID := notification.ResourceID()
	requestID := r.Header.Get(RequestIDHeader)

	signatureOK := h.verifier.Verify(r.Header.Get(SignatureHeader), requestID, resourceID)
	h.metrics.ObserveWebhook(metricTopic(topic), signatureOK)

	logger := h.logger.With(
		"topic", topic,
		"action", notification.Action,
		"resource_id", resourceID,
		"mp_request_id", requestID,
		"correlation_id", correlationID,
	)
	if signatureOK {
		logger.Info("webhook signature verified")
	} else {
		logger.Warn("webhook signature rejected", "secret_configured", h.verifier.Configured())
	}

	// The notification only tells us something changed; the resource itself
	// is always read back from the API.
	h.reconsult(r.Context(), logger, topic, resourceID)

	writeJSON(w, http.StatusOK, map[string]any{
		"received":     true,
		"signature_ok": signatureOK,
	})
}

func (h *Handler) reconsult(ctx context.Context, logger *slog.Logger, topic, resourceID string) {
	if h.remote == nil || resourceID == "" {
		return
	}

	switch topic {
	case TopicPreapproval:
		raw, err := h.remote.GetPreapproval(ctx, resourceID)
		if err != nil {
			h.metrics.ObserveReconsultFailure(topic)
			logger.Warn("preapproval reconsult failed", "error", err)
			return
		}
		var sub struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(raw, &sub)
		logger.Info("preapproval reconsulted", "status", sub.Status)

	case TopicAuthorizedPayment, TopicInvoice:
		raw, err := h.remote.SearchAuthorizedPayments(ctx, url.Values{"preapproval_id": {resourceID}})
		if err != nil {
			h.metrics.ObserveReconsultFailure(topic)
			logger.Warn("authorized payments reconsult failed", "error", err)
			return
		}
		var page struct {
			Results []json.RawMessage `json:"results"`
		}
		_ = json.Unmarshal(raw, &page)
		logger.Info("authorized payments reconsulted", "results", len(page.Results))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
