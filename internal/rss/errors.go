package rss

import (
	"errors"
	"fmt"
)

var (
	// ErrStatus marks a non-2xx response from a transport endpoint.
	ErrStatus = errors.New("unexpected HTTP status")
	// ErrMalformedPayload marks a response body that cannot be decoded into items.
	ErrMalformedPayload = errors.New("malformed feed payload")

	errNoTransport = errors.New("no transport configured")
)

// TransportError records which transport failed for which feed URL.
type TransportError struct {
	Transport string
	URL       string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failed for %s: %v", e.Transport, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
