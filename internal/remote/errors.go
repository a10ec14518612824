package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable is returned by Probe when the server has no fingerprint for
// the resource.
var ErrUnavailable = errors.New("fingerprint unavailable")

// TransportError reports a failed remote call: an I/O failure, a timeout, a
// non-2xx status or an open circuit breaker.
type TransportError struct {
	URL        string
	StatusCode int    // 0 when no response was received
	Reason     string // server-supplied failure reason, if any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether resending the same request may succeed.
// Client errors other than 408 and 429 are not.
func (e *TransportError) Retryable() bool {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
	}
	return true
}
