package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Topics that trigger a re-fetch of the referenced resource.
const (
	TopicPreapproval       = "preapproval"
	TopicAuthorizedPayment = "authorized_payment"
	TopicInvoice           = "invoice"
	// TopicOther labels every topic the gateway does not act on.
	TopicOther = "other"
)

// ErrInvalidPayload is returned when a notification body is not a JSON object.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Notification is the subset of a Mercado Pago notification body the gateway reads.
type Notification struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	LiveMode bool   `json:"live_mode"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification decodes body. Unknown fields are ignored.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if len(bytes.TrimSpace(body)) == 0 {
		return n, ErrInvalidPayload
	}
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return n, nil
}

// EventTopic returns type, falling back to the legacy topic field.
func (n Notification) EventTopic() string {
	if t := strings.TrimSpace(n.Type); t != "" {
		return t
	}
	return strings.TrimSpace(n.Topic)
}

// ResourceID returns data.id as a string. String ids are unquoted, numeric
// ids keep their literal JSON text, anything else yields "".
func (n Notification) ResourceID() string {
	raw := bytes.TrimSpace(n.Data.ID)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return ""
		}
		return num.String()
	default:
		return ""
	}
}

// metricTopic bounds the topic label to the values the gateway knows.
func metricTopic(topic string) string {
	switch topic {
	case TopicPreapproval, TopicAuthorizedPayment, TopicInvoice:
		return topic
	default:
		return TopicOther
	}
}
