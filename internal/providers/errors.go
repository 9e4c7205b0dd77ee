package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingCredential means a cloud provider has no API key.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidRegion means a cloud region is not one of the known endpoints.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrUnknownKind means the provider kind is not recognized.
	ErrUnknownKind = errors.New("unknown provider kind")

	// ErrRuntimeUnavailable means a local runtime is not registered or not compiled in.
	ErrRuntimeUnavailable = errors.New("local runtime unavailable")

	// ErrEmptyResponse means the backend returned no text.
	ErrEmptyResponse = errors.New("empty response")
)

// OCRError wraps any backend failure while processing an image.
type OCRError struct {
	Provider string
	Image    string
	Cause    error
}

func (e *OCRError) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("%s: ocr %s: %v", e.Provider, e.Image, e.Cause)
	}
	return fmt.Sprintf("%s: ocr: %v", e.Provider, e.Cause)
}

func (e *OCRError) Unwrap() error {
	return e.Cause
}

// IsOCRError reports whether err is or wraps an *OCRError.
func IsOCRError(err error) (*OCRError, bool) {
	var oe *OCRError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// RateLimitError is returned when a backend responds with HTTP 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError reports whether err is or wraps a *RateLimitError.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
