package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/gauthierbraillon/threadlens/internal/llm"
)

// Cancellation causes. A run stopped by any of them ends in PhaseCancelled.
var (
	ErrCancelledByUser = errors.New("analysis cancelled")
	ErrSuperseded      = errors.New("analysis superseded by a newer run")
	ErrTimeout         = errors.New("analysis timed out")
)

// ErrEmptyExtraction is returned when the page had no usable comments.
// Retrying after more replies have loaded may succeed.
var ErrEmptyExtraction = errors.New("no comments found - scroll to load replies and try again")

// Error codes reported over the message channel.
const (
	CodeConfiguration   = "CONFIGURATION_ERROR"
	CodeTransport       = "TRANSPORT_ERROR"
	CodeTimeout         = "TIMEOUT_ERROR"
	CodeEmptyExtraction = "EMPTY_EXTRACTION"
	CodeAnalysis        = "ANALYSIS_ERROR"
)

// TimeoutError reports that the analysis service did not answer in time.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis timed out after %s - the service may be overloaded, try fewer comments or a longer timeout", e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Code classifies err for callers that only see a string.
func Code(err error) string {
	var te *llm.TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, llm.ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrEmptyExtraction):
		return CodeEmptyExtraction
	case errors.As(err, &te):
		return CodeTransport
	default:
		return CodeAnalysis
	}
}
