package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// GenericFailure is shown when neither the server nor the transport gave
// anything more specific
const GenericFailure = "Analysis request failed. Please try again."

var (
	ErrUnknownEndpoint = errors.New("unknown analysis endpoint")
	ErrEmptyRequest    = errors.New("analysis request has no content")
	ErrMalformedBody   = errors.New("malformed response body")
)

// ValidationError is raised before any network call when the input is unusable
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// TransportError covers network failures, non-2xx statuses and unreadable bodies
type TransportError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("analysis transport failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// DomainError is a well-formed backend reply whose detail says the input
// could not be processed
type DomainError struct {
	Detail string
}

func (e *DomainError) Error() string { return e.Detail }

// Detail returns the text to show the user for err
func Detail(err error) string {
	var domain *DomainError
	if errors.As(err, &domain) && domain.Detail != "" {
		return domain.Detail
	}
	var transport *TransportError
	if errors.As(err, &transport) && transport.Detail != "" {
		return transport.Detail
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Error()
	}
	return GenericFailure
}
