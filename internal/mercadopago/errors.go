package mercadopago

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vrcrugby/subgate/internal/platform/config"
)

var (
	// ErrAccessTokenRequired is the configuration sentinel, so callers can match
	// either package's name with errors.Is.
	ErrAccessTokenRequired = config.ErrAccessTokenRequired
	ErrInvalidResponse     = errors.New("mercadopago returned a non-JSON response")
	ErrIDRequired          = errors.New("resource id is required")
)

// RemoteAPIError is returned when the API answers with a status >= 400.
// Body is the remote error payload, kept verbatim apart from JSON compaction.
type RemoteAPIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func newRemoteAPIError(method, url string, status int, body []byte) *RemoteAPIError {
	msg := strings.TrimSpace(string(body))
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err == nil {
		msg = compact.String()
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &RemoteAPIError{
		StatusCode: status,
		Method:     method,
		URL:        url,
		Body:       msg,
	}
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("mercadopago: %d %s %s -> %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
