package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error codes mirrored from the Sheets API plus the queue's own markers.
const (
	CodeRateLimit = "429"
	CodeTimeout   = "TIMEOUT"
	CodeConfig    = "CONFIG_ERROR"
	CodeAuth      = "AUTH_ERROR"
)

// Error is the single typed error for every spreadsheet or token-endpoint
// failure. Code is optional and machine-readable; Cause keeps the chain.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("sheets: %s (code %s)", e.Message, e.Code)
	}
	return "sheets: " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// apiErrorBody is the shape of a Sheets API error response.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func errorFromResponse(resp *http.Response, body []byte) *Error {
	var parsed apiErrorBody
	msg := fmt.Sprintf("HTTP error: status %d", resp.StatusCode)
	code := fmt.Sprintf("%d", resp.StatusCode)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
		if parsed.Error.Code != 0 {
			code = fmt.Sprintf("%d", parsed.Error.Code)
		}
	}
	return &Error{Code: code, Message: msg}
}

// IsRetryable reports whether err is a rate-limit, timeout, or
// network-class failure worth another attempt.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		if se.Code == CodeRateLimit || se.Code == CodeTimeout {
			return true
		}
		return strings.Contains(se.Message, "network") ||
			strings.Contains(se.Message, "Failed to fetch")
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// isRateLimit reports whether err carries the rate-limit code, which makes
// the queue escalate to its quota delays instead of plain backoff.
func isRateLimit(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeRateLimit
}
