package mercadopago

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// CreatePreapproval creates a subscription without a plan.
// POST /preapproval
func (c *Client) CreatePreapproval(ctx context.Context, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/preapproval", "/preapproval", nil, body)
}

// GetPreapproval fetches a subscription by id.
// GET /preapproval/{id}
func (c *Client) GetPreapproval(ctx context.Context, id string) (json.RawMessage, error) {
	path, err := preapprovalPath(id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, "/preapproval/{id}", path, nil, nil)
}

// UpdatePreapproval changes status, amount or metadata of a subscription.
// PUT /preapproval/{id}
func (c *Client) UpdatePreapproval(ctx context.Context, id string, body any) (json.RawMessage, error) {
	path, err := preapprovalPath(id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, "/preapproval/{id}", path, nil, body)
}

// SearchPreapprovals lists subscriptions matching params
// (payer_email, status, external_reference, limit, offset).
// GET /preapproval/search
func (c *Client) SearchPreapprovals(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/preapproval/search", "/preapproval/search", params, nil)
}

// SearchAuthorizedPayments lists the recurring charges (invoices) of a
// subscription, filtered by preapproval_id and optionally status.
// GET /authorized_payments/search
func (c *Client) SearchAuthorizedPayments(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/authorized_payments/search", "/authorized_payments/search", params, nil)
}

func preapprovalPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrIDRequired
	}
	return "/preapproval/" + url.PathEscape(id), nil
}
