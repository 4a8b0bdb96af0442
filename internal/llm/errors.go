package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrConfiguration is returned when the analysis endpoint is missing or invalid.
var ErrConfiguration = errors.New("configuration error")

// maxErrorBody bounds how much of an error response is quoted back to the user.
const maxErrorBody = 512

// TransportError is a failed exchange with the analysis service: either the
// request never completed or the service answered with a non-success status.
type TransportError struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Body != "" {
		b.WriteString(" - ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether sending the same request again may succeed.
// Authentication and authorization failures never are.
func (e *TransportError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

func handleAPIError(statusCode int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	var msg string
	switch statusCode {
	case http.StatusUnauthorized:
		msg = "analysis API authentication failed - please check your API key (run 'threadlens auth')"
	case http.StatusForbidden:
		msg = "analysis API access denied - check that your API key may use this model"
	case http.StatusTooManyRequests:
		msg = "analysis API rate limit exceeded - please wait a moment and try again"
	case http.StatusServiceUnavailable:
		msg = "analysis API temporarily unavailable - please try again in a few minutes"
	default:
		if statusCode >= 500 {
			msg = "analysis API server error - please try again later"
		} else {
			msg = fmt.Sprintf("analysis API error (status %d) - please try again", statusCode)
		}
	}

	return &TransportError{StatusCode: statusCode, Message: msg, Body: text}
}
