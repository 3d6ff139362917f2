package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind tells the retry driver what to do with a failed attempt.
type Kind int

const (
	KindPermanent Kind = iota
	KindTransient
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCancelled:
		return "cancelled"
	default:
		return "permanent"
	}
}

// Error is the tagged failure returned from outbound call sites. StatusCode
// is zero for failures that never produced an HTTP response.
type Error struct {
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

func Permanent(err error) error {
	return &Error{Kind: KindPermanent, Err: err}
}

// StatusError tags a non-success HTTP response by its status code.
func StatusError(status int, body string) error {
	kind := KindPermanent
	if IsTransientStatus(status) {
		kind = KindTransient
	}
	return &Error{Kind: kind, StatusCode: status, Body: body}
}

func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Classify resolves the kind of err. Cancellation always wins so a caller's
// abandonment is never masked by a retry.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransient
	}

	return KindPermanent
}

// StatusCodeOf returns the HTTP status carried by a tagged error, or 0.
func StatusCodeOf(err error) int {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.StatusCode
	}
	return 0
}
