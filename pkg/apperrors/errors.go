// Package apperrors defines the error taxonomy shared across the engine.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP status mapping.
type Kind string

const (
	// KindAuthMissing means credential resolution failed for a connection spec.
	KindAuthMissing Kind = "auth_missing"
	// KindConnectionFailed means the database engine rejected the connection.
	KindConnectionFailed Kind = "connection_failed"
	// KindInvalidIdentifier means a supplied name failed the safe-identifier check.
	KindInvalidIdentifier Kind = "invalid_identifier"
	// KindNotFound means a connection, table, or stored document is absent.
	KindNotFound Kind = "not_found"
	// KindCostExceeded means the cost ceiling or a per-query byte limit was hit.
	KindCostExceeded Kind = "cost_exceeded"
	// KindLLMUnavailable means provider retries were exhausted.
	KindLLMUnavailable Kind = "llm_unavailable"
	// KindStageFailed means pipeline stage 1 could not produce acquire artifacts.
	KindStageFailed Kind = "stage_failed"
	// KindFacetFailed means a stage-2 profiling facet failed.
	KindFacetFailed Kind = "facet_failed"
	// KindCancelled means job cancellation was observed.
	KindCancelled Kind = "cancelled"
	// KindValidation means request input failed boundary validation.
	KindValidation Kind = "validation"
)

// Error is a structured engine error carrying its classification and,
// for pipeline errors, the stage that produced it.
type Error struct {
	Kind    Kind
	Stage   string // pipeline stage name, empty outside the orchestrator
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("stage %s: %s", e.Stage, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a structured error wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Stage creates a structured error tagged with a pipeline stage name.
func Stage(kind Kind, stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error chain. Returns empty Kind for
// unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsClientError reports whether the error maps to a 4xx HTTP status.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInvalidIdentifier, KindNotFound, KindValidation:
		return true
	}
	return false
}
