// Package subscriptions exposes the /subscriptions HTTP surface. Requests are
// validated, lightly reshaped and forwarded to the Mercado Pago preapproval API;
// remote responses are relayed as they come.
package subscriptions

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 100

	defaultFrequency     = 1
	defaultFrequencyType = "months"
	thanksPage           = "/gracias.html"
	referenceKey         = "reference"
)

var (
	validStatuses       = map[string]bool{"authorized": true, "paused": true, "cancelled": true, "pending": true}
	validFrequencyTypes = map[string]bool{"days": true, "months": true}
)

// ValidationError reports a malformed or out-of-range request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Options carries the deployment defaults applied while reshaping requests.
type Options struct {
	// BaseURL is the public frontend URL; back_url defaults to BaseURL + "/gracias.html".
	BaseURL string
	// Currency is used when auto_recurring omits currency_id.
	Currency string
}

// AutoRecurring is the recurrence configuration of a subscription.
// It also accepts the short field names currency, amount, frequency_unit and trial.
type AutoRecurring struct {
	CurrencyID        string         `json:"currency_id,omitempty"`
	TransactionAmount float64        `json:"transaction_amount"`
	Frequency         int            `json:"frequency,omitempty"`
	FrequencyType     string         `json:"frequency_type,omitempty"`
	StartDate         string         `json:"start_date,omitempty"`
	EndDate           string         `json:"end_date,omitempty"`
	FreeTrial         map[string]any `json:"free_trial,omitempty"`
}

func (a *AutoRecurring) UnmarshalJSON(data []byte) error {
	type plain AutoRecurring
	var in struct {
		plain
		Currency      string         `json:"currency"`
		Amount        *float64       `json:"amount"`
		FrequencyUnit string         `json:"frequency_unit"`
		Trial         map[string]any `json:"trial"`
	}
	in.Frequency = defaultFrequency
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	out := AutoRecurring(in.plain)
	if out.CurrencyID == "" {
		out.CurrencyID = in.Currency
	}
	if out.TransactionAmount == 0 && in.Amount != nil {
		out.TransactionAmount = *in.Amount
	}
	if out.FrequencyType == "" {
		out.FrequencyType = in.FrequencyUnit
	}
	if out.FreeTrial == nil {
		out.FreeTrial = in.Trial
	}
	*a = out
	return nil
}

func (a *AutoRecurring) validate() error {
	if a.TransactionAmount <= 0 || math.IsNaN(a.TransactionAmount) || math.IsInf(a.TransactionAmount, 0) {
		return invalid("auto_recurring.transaction_amount", "must be greater than zero")
	}
	if a.Frequency <= 0 {
		return invalid("auto_recurring.frequency", "must be greater than zero")
	}
	if a.FrequencyType != "" && !validFrequencyTypes[a.FrequencyType] {
		return invalid("auto_recurring.frequency_type", "must be one of days, months")
	}
	return nil
}

func (a *AutoRecurring) normalize(opts Options) {
	a.TransactionAmount = RoundAmount(a.TransactionAmount)
	a.CurrencyID = strings.ToUpper(strings.TrimSpace(a.CurrencyID))
	if a.CurrencyID == "" {
		a.CurrencyID = opts.Currency
	}
}

// PreapprovalBody is the payload sent to the remote preapproval endpoints.
// Empty fields are omitted so updates only carry what the caller set.
type PreapprovalBody struct {
	PayerEmail        string         `json:"payer_email,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	AutoRecurring     *AutoRecurring `json:"auto_recurring,omitempty"`
	BackURL           string         `json:"back_url,omitempty"`
	ExternalReference string         `json:"external_reference,omitempty"`
	CardTokenID       string         `json:"card_token_id,omitempty"`
	Status            string         `json:"status,omitempty"`
}

type CreateRequest struct {
	PayerEmail        string            `json:"payer_email"`
	Reason            string            `json:"reason"`
	AutoRecurring     *AutoRecurring    `json:"auto_recurring"`
	BackURL           string            `json:"back_url,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
	ReferenceMetadata map[string]string `json:"reference_metadata,omitempty"`
	CardTokenID       string            `json:"card_token_id,omitempty"`
}

// Build validates the request and returns the remote create payload.
func (r CreateRequest) Build(opts Options) (*PreapprovalBody, error) {
	email := strings.TrimSpace(r.PayerEmail)
	if email == "" {
		return nil, invalid("payer_email", "is required")
	}
	if !validEmail(email) {
		return nil, invalid("payer_email", "is not a valid email address")
	}
	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	if r.AutoRecurring == nil {
		return nil, invalid("auto_recurring", "is required")
	}

	recurring := *r.AutoRecurring
	if recurring.FrequencyType == "" {
		recurring.FrequencyType = defaultFrequencyType
	}
	if err := recurring.validate(); err != nil {
		return nil, err
	}
	recurring.normalize(opts)

	reference, err := mergeReference(r.ExternalReference, r.ReferenceMetadata)
	if err != nil {
		return nil, err
	}

	backURL := strings.TrimSpace(r.BackURL)
	if backURL == "" {
		backURL = defaultBackURL(opts.BaseURL)
	}

	return &PreapprovalBody{
		PayerEmail:        email,
		Reason:            reason,
		AutoRecurring:     &recurring,
		BackURL:           backURL,
		ExternalReference: reference,
		CardTokenID:       strings.TrimSpace(r.CardTokenID),
	}, nil
}

type UpdateRequest struct {
	Status            string            `json:"status,omitempty"`
	CardTokenID       string            `json:"card_token_id,omitempty"`
	PayerEmail        string            `json:"payer_email,omitempty"`
	BackURL           string            `json:"back_url,omitempty"`
	Reason            string            `json:"reason,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
	ReferenceMetadata map[string]string `json:"reference_metadata,omitempty"`
	AutoRecurring     *AutoRecurring    `json:"auto_recurring,omitempty"`
}

// Build validates the request and returns a payload holding only the fields that were set.
func (r UpdateRequest) Build(opts Options) (*PreapprovalBody, error) {
	body := &PreapprovalBody{
		Status:      strings.ToLower(strings.TrimSpace(r.Status)),
		CardTokenID: strings.TrimSpace(r.CardTokenID),
		PayerEmail:  strings.TrimSpace(r.PayerEmail),
		BackURL:     strings.TrimSpace(r.BackURL),
		Reason:      strings.TrimSpace(r.Reason),
	}

	if body.Status != "" && !validStatuses[body.Status] {
		return nil, invalid("status", "must be one of authorized, paused, cancelled, pending")
	}
	if body.PayerEmail != "" && !validEmail(body.PayerEmail) {
		return nil, invalid("payer_email", "is not a valid email address")
	}
	if r.AutoRecurring != nil {
		recurring := *r.AutoRecurring
		if err := recurring.validate(); err != nil {
			return nil, err
		}
		recurring.normalize(opts)
		body.AutoRecurring = &recurring
	}

	reference, err := mergeReference(r.ExternalReference, r.ReferenceMetadata)
	if err != nil {
		return nil, err
	}
	body.ExternalReference = reference

	if *body == (PreapprovalBody{}) {
		return nil, invalid("body", "at least one field must be set")
	}
	return body, nil
}

// AmountUpdateRequest changes only the recurring amount of a subscription.
type AmountUpdateRequest struct {
	Amount float64 `json:"amount"`
}

func (r AmountUpdateRequest) Build(opts Options) (*PreapprovalBody, error) {
	if r.Amount <= 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return nil, invalid("amount", "must be greater than zero")
	}
	return &PreapprovalBody{
		AutoRecurring: &AutoRecurring{
			TransactionAmount: RoundAmount(r.Amount),
			CurrencyID:        opts.Currency,
		},
	}, nil
}

// SearchParams are the filters accepted by GET /subscriptions.
type SearchParams struct {
	Email      string
	Status     string
	Ambassador string
	Limit      int
	Offset     int
}

// ParseSearch reads and validates the search query string.
func ParseSearch(q url.Values) (SearchParams, error) {
	p := SearchParams{
		Email:      strings.TrimSpace(q.Get("email")),
		Status:     strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Ambassador: strings.TrimSpace(q.Get("ambassador")),
		Limit:      DefaultSearchLimit,
	}

	if p.Status != "" && !validStatuses[p.Status] {
		return SearchParams{}, invalid("status", "must be one of authorized, paused, cancelled, pending")
	}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxSearchLimit {
			return SearchParams{}, invalid("limit", "must be an integer between 1 and %d", MaxSearchLimit)
		}
		p.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return SearchParams{}, invalid("offset", "must be a non-negative integer")
		}
		p.Offset = offset
	}
	return p, nil
}

// Values maps the filters onto the remote search parameters.
// The ambassador filter matches against external_reference.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(p.Limit))
	v.Set("offset", strconv.Itoa(p.Offset))
	if p.Email != "" {
		v.Set("payer_email", p.Email)
	}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.Ambassador != "" {
		v.Set("external_reference", p.Ambassador)
	}
	return v
}

// RoundAmount rounds the stored value to two decimals. Exact ties go to the
// even digit, so 0.125 becomes 0.12 while 2.675, stored just below the
// half, becomes 2.67.
func RoundAmount(v float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}

func defaultBackURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return ""
	}
	return baseURL + thanksPage
}

// mergeReference folds metadata into a single external_reference string:
// a JSON object with sorted keys, the explicit reference stored under "reference".
func mergeReference(reference string, metadata map[string]string) (string, error) {
	reference = strings.TrimSpace(reference)
	if len(metadata) == 0 {
		return reference, nil
	}

	merged := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		if k = strings.TrimSpace(k); k != "" {
			merged[k] = v
		}
	}
	if reference != "" {
		merged[referenceKey] = reference
	}
	if len(merged) == 0 {
		return "", nil
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("encoding reference metadata: %w", err)
	}
	return string(out), nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
