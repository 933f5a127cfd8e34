package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorKind classifies a failed model call. Every kind drives failover to
// the next backend within the same record; KindQuota additionally tells the
// rate-limited strategy to put the whole tier into cooldown.
type ErrorKind string

const (
	// KindTransient covers 5xx responses, timeouts, and connection resets.
	KindTransient ErrorKind = "transient"
	// KindQuota covers 429s and provider-specific quota/rate-limit signals.
	KindQuota ErrorKind = "quota"
	// KindMalformed covers unusable model output and rejected requests.
	KindMalformed ErrorKind = "malformed"
)

// CallError is a classified failure of a single model call.
type CallError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Err      error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s/%s: %s: status %d: %s", e.Provider, e.Model, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s: %s", e.Provider, e.Model, e.Kind, e.Message)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err. Unclassified errors (e.g. raw
// network failures below the provider layer) count as transient.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// Fragments providers embed in quota-exhaustion error payloads. Checked
// case-insensitively against the error body when the status alone is not
// conclusive.
var quotaMarkers = []string{
	"resource_exhausted",
	"rate_limit",
	"rate limit",
	"quota",
	"too many requests",
}

// ClassifyStatus maps an HTTP status and provider error payload to an
// ErrorKind. The payload shape differs per provider, so the error message
// is extracted tolerantly with gjson instead of a per-provider struct.
func ClassifyStatus(status int, body []byte) (ErrorKind, string) {
	msg := errorMessage(body)

	if status == http.StatusTooManyRequests {
		return KindQuota, msg
	}
	if status >= 500 {
		return KindTransient, msg
	}

	lower := strings.ToLower(msg + " " + gjson.GetBytes(body, "error.status").String())
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return KindQuota, msg
		}
	}

	return KindMalformed, msg
}

// errorMessage pulls a human-readable message out of whichever error shape
// the provider uses.
func errorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
