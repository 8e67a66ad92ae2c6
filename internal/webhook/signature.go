// Package webhook authenticates Mercado Pago notifications and turns them
// into re-fetches of the resource they point at.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const (
	// SignatureHeader is the header carrying "ts=<token>,v1=<base64 mac>".
	SignatureHeader = "X-Signature"
	// RequestIDHeader is the processor-assigned delivery id covered by the mac.
	RequestIDHeader = "X-Request-Id"
)

// Signature is the parsed form of the signature header.
type Signature struct {
	Timestamp string
	V1        string
	// Params holds every key=value pair seen; later duplicates overwrite earlier ones.
	Params map[string]string
}

// ParseSignature splits raw into its key=value pairs. It never fails: tokens
// without "=" are skipped, and a missing ts or v1 is left empty.
func ParseSignature(raw string) Signature {
	params := make(map[string]string)
	for _, token := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(token), "=")
		if !found {
			continue
		}
		params[key] = value
	}
	return Signature{
		Timestamp: params["ts"],
		V1:        params["v1"],
		Params:    params,
	}
}

// Manifest builds the exact string the processor signs. Field order, the
// separators and the trailing semicolon are all significant.
func Manifest(resourceID, requestID, ts string) string {
	return "id:" + resourceID + ";request-id:" + requestID + ";ts:" + ts + ";"
}

// Sign returns base64(HMAC-SHA256(secret, manifest)) with standard padding.
func Sign(secret []byte, manifest string) string {
	mac := hmac.New(sha256.New, secret)
	// hash.Hash.Write never returns an error.
	_, _ = mac.Write([]byte(manifest))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue formats a header value the way the processor sends it.
func SignatureHeaderValue(ts, v1 string) string {
	return "ts=" + ts + ",v1=" + v1
}
