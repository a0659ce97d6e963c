package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for per-item failures. Stages convert these into counters.
var (
	ErrTransport     = errors.New("transport error")
	ErrEmptyContent  = errors.New("empty content")
	ErrEncoding      = errors.New("encoding error")
	ErrStorageWrite  = errors.New("storage write error")
	ErrParse         = errors.New("parse failure")
	ErrNotFound      = errors.New("no pending record")
	ErrPermanent     = errors.New("permanent failure")
	ErrInvalidRecord = errors.New("invalid record")
)

// FetchError describes a failed HTTP fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Permanent  bool
	Err        error
}

// NewFetchError classifies the failure by status code and wraps err.
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: statusCode,
		Permanent:  permanentStatus(statusCode),
		Err:        err,
	}
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the taxonomy sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrPermanent:
		return e.Permanent
	default:
		return false
	}
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrPermanent)
}

func permanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusGone,
		http.StatusRequestURITooLong,
		http.StatusUnavailableForLegalReasons:
		return true
	default:
		return false
	}
}
