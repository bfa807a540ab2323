// Package resilience classifies provider failures and guards provider calls
// with retry and circuit breaking.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// TransientError marks a provider failure that may succeed if retried, such
// as a rate limit, an overloaded upstream or a dropped connection.
type TransientError struct {
	Err        error
	Provider   string
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient. statusCode may be zero for
// failures below the HTTP layer.
func NewTransientError(provider string, err error, statusCode int) *TransientError {
	return &TransientError{Err: err, Provider: provider, StatusCode: statusCode}
}

// FromStatus wraps err as transient when statusCode is retryable and returns
// it unchanged otherwise.
func FromStatus(provider string, err error, statusCode int) error {
	if err == nil {
		return nil
	}
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(provider, err, statusCode)
	}
	return err
}

// ErrPermanent tags failures that retrying cannot fix: bad credentials,
// unknown models, malformed requests.
var ErrPermanent = eris.New("permanent provider error")

var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"overloaded",
	"rate limit",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying. Explicit TransientErrors,
// network timeouts and connection-level resets qualify; ErrPermanent and
// circuit rejections never do.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrPermanent) || errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientMessages {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is retryable.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 409, 425, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}
