package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/procuregov/authcore"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WriteJSON writes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError classifies err and writes the structured error body. The
// message comes from the error kind, never from err itself. Errors carrying
// a retry duration also set the Retry-After header.
func WriteError(w http.ResponseWriter, err error) {
	kind := authcore.KindOf(err)
	if kind == "" {
		kind = authcore.KindInternal
	}
	body := ErrorBody{
		Code:      string(kind),
		Message:   kind.Message(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if after, ok := authcore.RetryAfter(err); ok {
		secs := retryAfterSeconds(after)
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	if kind.HTTPStatus() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="procurement"`)
	}
	WriteJSON(w, kind.HTTPStatus(), body)
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
