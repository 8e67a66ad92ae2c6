package subscriptions_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrcrugby/subgate/internal/subscriptions"
)

var testOptions = subscriptions.Options{
	BaseURL:  "https://vrc.example.com/",
	Currency: "ARS",
}

func decodeCreate(t *testing.T, raw string) subscriptions.CreateRequest {
	t.Helper()
	var req subscriptions.CreateRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return req
}

func TestRoundAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1500, 1500},
		{1500.456, 1500.46},
		{99.994, 99.99},
		{10.125, 10.12},
		{-10.125, -10.12},
		{0.125, 0.12},
		{2.675, 2.67},
		{10.005, 10.0},
		{0.001, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subscriptions.RoundAmount(tt.in), "RoundAmount(%v)", tt.in)
	}
}

func TestAutoRecurring_Aliases(t *testing.T) {
	var ar subscriptions.AutoRecurring
	require.NoError(t, json.Unmarshal([]byte(`{
		"currency": "ARS",
		"amount": 2500,
		"frequency_unit": "days",
		"trial": {"frequency": 1, "frequency_type": "months"}
	}`), &ar))

	assert.Equal(t, "ARS", ar.CurrencyID)
	assert.Equal(t, 2500.0, ar.TransactionAmount)
	assert.Equal(t, 1, ar.Frequency, "frequency defaults to 1")
	assert.Equal(t, "days", ar.FrequencyType)
	assert.Equal(t, "months", ar.FreeTrial["frequency_type"])
}

func TestAutoRecurring_CanonicalNamesWin(t *testing.T) {
	var ar subscriptions.AutoRecurring
	require.NoError(t, json.Unmarshal([]byte(`{
		"currency_id": "BRL", "currency": "ARS",
		"transaction_amount": 10, "amount": 20,
		"frequency": 3, "frequency_type": "months", "frequency_unit": "days"
	}`), &ar))

	assert.Equal(t, "BRL", ar.CurrencyID)
	assert.Equal(t, 10.0, ar.TransactionAmount)
	assert.Equal(t, 3, ar.Frequency)
	assert.Equal(t, "months", ar.FrequencyType)
}

func TestCreateRequest_Build(t *testing.T) {
	req := decodeCreate(t, `{
		"payer_email": " donor@example.com ",
		"reason": "Aporte mensual",
		"auto_recurring": {"currency": "ars", "amount": 1500.456, "frequency_unit": "months"},
		"external_reference": "ext-1",
		"reference_metadata": {"donor_name": "Ana", "ambassador": "juan"}
	}`)

	body, err := req.Build(testOptions)
	require.NoError(t, err)

	assert.Equal(t, "donor@example.com", body.PayerEmail)
	assert.Equal(t, "Aporte mensual", body.Reason)
	assert.Equal(t, "https://vrc.example.com/gracias.html", body.BackURL)
	assert.Equal(t, `{"ambassador":"juan","donor_name":"Ana","reference":"ext-1"}`, body.ExternalReference)
	require.NotNil(t, body.AutoRecurring)
	assert.Equal(t, "ARS", body.AutoRecurring.CurrencyID)
	assert.Equal(t, 1500.46, body.AutoRecurring.TransactionAmount)
	assert.Equal(t, 1, body.AutoRecurring.Frequency)
	assert.Equal(t, "months", body.AutoRecurring.FrequencyType)

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"payer_email": "donor@example.com",
		"reason": "Aporte mensual",
		"back_url": "https://vrc.example.com/gracias.html",
		"external_reference": "{\"ambassador\":\"juan\",\"donor_name\":\"Ana\",\"reference\":\"ext-1\"}",
		"auto_recurring": {
			"currency_id": "ARS",
			"transaction_amount": 1500.46,
			"frequency": 1,
			"frequency_type": "months"
		}
	}`, string(payload))
}

func TestCreateRequest_Defaults(t *testing.T) {
	req := decodeCreate(t, `{
		"payer_email": "donor@example.com",
		"reason": "Aporte",
		"auto_recurring": {"transaction_amount": 1000},
		"back_url": "https://elsewhere.example.com/ok"
	}`)

	body, err := req.Build(testOptions)
	require.NoError(t, err)

	assert.Equal(t, "https://elsewhere.example.com/ok", body.BackURL, "explicit back_url is kept")
	assert.Equal(t, "ARS", body.AutoRecurring.CurrencyID)
	assert.Equal(t, "months", body.AutoRecurring.FrequencyType)
	assert.Empty(t, body.ExternalReference)

	noBase, err := req.Build(subscriptions.Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://elsewhere.example.com/ok", noBase.BackURL)

	req.BackURL = ""
	noBase, err = req.Build(subscriptions.Options{})
	require.NoError(t, err)
	assert.Empty(t, noBase.BackURL, "no base url means no default back_url")
}

func TestCreateRequest_BuildDoesNotMutateRequest(t *testing.T) {
	req := decodeCreate(t, `{"payer_email":"a@b.co","reason":"r","auto_recurring":{"transaction_amount":1.239}}`)
	_, err := req.Build(testOptions)
	require.NoError(t, err)
	assert.Equal(t, 1.239, req.AutoRecurring.TransactionAmount)
}

func TestCreateRequest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing email", `{"reason":"r","auto_recurring":{"amount":1}}`, "payer_email"},
		{"bad email", `{"payer_email":"not-an-email","reason":"r","auto_recurring":{"amount":1}}`, "payer_email"},
		{"display name email", `{"payer_email":"Ana <a@b.co>","reason":"r","auto_recurring":{"amount":1}}`, "payer_email"},
		{"missing reason", `{"payer_email":"a@b.co","reason":"  ","auto_recurring":{"amount":1}}`, "reason"},
		{"missing recurrence", `{"payer_email":"a@b.co","reason":"r"}`, "auto_recurring"},
		{"zero amount", `{"payer_email":"a@b.co","reason":"r","auto_recurring":{"amount":0}}`, "auto_recurring.transaction_amount"},
		{"negative amount", `{"payer_email":"a@b.co","reason":"r","auto_recurring":{"transaction_amount":-5}}`, "auto_recurring.transaction_amount"},
		{"zero frequency", `{"payer_email":"a@b.co","reason":"r","auto_recurring":{"amount":1,"frequency":0}}`, "auto_recurring.frequency"},
		{"bad frequency type", `{"payer_email":"a@b.co","reason":"r","auto_recurring":{"amount":1,"frequency_type":"weeks"}}`, "auto_recurring.frequency_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := decodeCreate(t, tt.body)
			_, err := req.Build(testOptions)

			var verr *subscriptions.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestUpdateRequest_Build(t *testing.T) {
	var req subscriptions.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Paused"}`), &req))

	body, err := req.Build(testOptions)
	require.NoError(t, err)

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"paused"}`, string(payload), "only set fields are forwarded")
}

func TestUpdateRequest_AutoRecurring(t *testing.T) {
	var req subscriptions.UpdateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"auto_recurring":{"amount":99.994}}`), &req))

	body, err := req.Build(testOptions)
	require.NoError(t, err)
	assert.Equal(t, 99.99, body.AutoRecurring.TransactionAmount)
	assert.Equal(t, "ARS", body.AutoRecurring.CurrencyID)
	assert.Empty(t, body.BackURL, "updates never default back_url")
}

func TestUpdateRequest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty", `{}`, "body"},
		{"bad status", `{"status":"deleted"}`, "status"},
		{"bad email", `{"payer_email":"nope"}`, "payer_email"},
		{"bad amount", `{"auto_recurring":{"amount":-1}}`, "auto_recurring.transaction_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req subscriptions.UpdateRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			_, err := req.Build(testOptions)
			var verr *subscriptions.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAmountUpdateRequest_Build(t *testing.T) {
	body, err := subscriptions.AmountUpdateRequest{Amount: 3000.006}.Build(testOptions)
	require.NoError(t, err)

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"auto_recurring":{"currency_id":"ARS","transaction_amount":3000.01}}`, string(payload))

	_, err = subscriptions.AmountUpdateRequest{Amount: 0}.Build(testOptions)
	var verr *subscriptions.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
}

func TestParseSearch(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := subscriptions.ParseSearch(url.Values{})
		require.NoError(t, err)
		assert.Equal(t, subscriptions.DefaultSearchLimit, p.Limit)
		assert.Equal(t, 0, p.Offset)
		assert.Equal(t, url.Values{"limit": {"50"}, "offset": {"0"}}, p.Values())
	})

	t.Run("filters", func(t *testing.T) {
		p, err := subscriptions.ParseSearch(url.Values{
			"email":      {"donor@example.com"},
			"status":     {"Authorized"},
			"ambassador": {"juan"},
			"limit":      {"100"},
			"offset":     {"20"},
		})
		require.NoError(t, err)
		assert.Equal(t, url.Values{
			"payer_email":        {"donor@example.com"},
			"status":             {"authorized"},
			"external_reference": {"juan"},
			"limit":              {"100"},
			"offset":             {"20"},
		}, p.Values())
	})

	invalid := map[string]url.Values{
		"limit zero":      {"limit": {"0"}},
		"limit too large": {"limit": {"101"}},
		"limit not int":   {"limit": {"ten"}},
		"negative offset": {"offset": {"-1"}},
		"unknown status":  {"status": {"gone"}},
	}
	for name, q := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := subscriptions.ParseSearch(q)
			var verr *subscriptions.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
