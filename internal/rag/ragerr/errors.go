// Package ragerr defines the error taxonomy shared by the retrieval
// engine, the ingestion pipeline, and the backend adapters.
//
// Every error crossing a package boundary carries a Kind so callers can
// decide on retries and the transport layer can map to a status code
// without string matching.
package ragerr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for retry policy and status mapping.
type Kind string

const (
	// KindValidation covers malformed or missing request fields.
	KindValidation Kind = "validation"

	// KindNotFound covers unknown documents or projects.
	KindNotFound Kind = "not_found"

	// KindRateLimited covers rejected requests over the sliding window.
	KindRateLimited Kind = "rate_limited"

	// KindProviderUnavailable is a transient embedding-provider failure.
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindProviderTimeout is an embedding call that exceeded its deadline.
	KindProviderTimeout Kind = "provider_timeout"

	// KindProviderAuth is a fatal credential failure; never retried.
	KindProviderAuth Kind = "provider_auth"

	// KindStoreUnavailable is a transient vector-store failure.
	KindStoreUnavailable Kind = "store_unavailable"

	// KindDimensionMismatch is a fatal configuration error: the vector
	// dimensionality does not match the project's configured model.
	KindDimensionMismatch Kind = "dimension_mismatch"

	// KindInternal covers everything unexpected.
	KindInternal Kind = "internal"
)

// Error is the concrete error type used across the engine. It carries
// the classification, the tenant/document context for the boundary
// layer's error envelope, and an optional retry hint.
type Error struct {
	Kind    Kind
	Message string

	// ProjectID and FileID identify what the operation was acting on,
	// when known.
	ProjectID string
	FileID    string

	// RetryAfter is a hint for rate-limited requests: how long until
	// capacity frees up.
	RetryAfter time.Duration

	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ProjectID != "" {
		msg = fmt.Sprintf("project %s: %s", e.ProjectID, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause returns nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithProject attaches tenant context for error envelopes and logs.
func (e *Error) WithProject(projectID string) *Error {
	e.ProjectID = projectID
	return e
}

// WithFile attaches the document identifier.
func (e *Error) WithFile(fileID string) *Error {
	e.FileID = fileID
	return e
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether the error kind is transient. Auth and
// dimension errors are configuration problems and must never be
// retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProviderUnavailable, KindProviderTimeout, KindStoreUnavailable:
		return true
	}
	return false
}

// RetryAfter extracts the retry hint from a rate-limit error, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// HTTPStatus maps an error to the status code the boundary layer
// should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProviderUnavailable, KindProviderTimeout, KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
