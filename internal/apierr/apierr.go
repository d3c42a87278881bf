// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package apierr implements the error taxonomy of §7: a small set of typed
// kinds that every component returns, and a single translation point to
// HTTP status codes and sanitized wire responses. Grounded on xg2g's
// internal/api/errors.go APIError/RespondError pattern, generalized from a
// fixed error table to an open Kind taxonomy.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/resonance-audio/resonance/internal/log"
)

// Kind is the error taxonomy from spec.md §7.
type Kind string

const (
	KindValidation            Kind = "VALIDATION_ERROR"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindInvalidToken          Kind = "INVALID_TOKEN"
	KindForbidden             Kind = "FORBIDDEN"
	KindNotFound              Kind = "NOT_FOUND"
	KindAudioFileNotFound     Kind = "AUDIO_FILE_NOT_FOUND"
	KindInvalidRange          Kind = "INVALID_RANGE"
	KindRangeNotSatisfiable   Kind = "RANGE_NOT_SATISFIABLE"
	KindConfiguration         Kind = "CONFIGURATION"
	KindMissingConfiguration  Kind = "MISSING_CONFIGURATION"
	KindDatabase              Kind = "DATABASE"
	KindDatabaseUnavailable   Kind = "DATABASE_UNAVAILABLE"
	KindServiceBusy           Kind = "SERVICE_BUSY"
	KindAIService             Kind = "AI_SERVICE"
	KindAIUnavailable         Kind = "AI_UNAVAILABLE"
	KindSearch                Kind = "SEARCH"
	KindTimeout               Kind = "TIMEOUT"
)

// httpStatus maps each Kind to its HTTP status per §7.
var httpStatus = map[Kind]int{
	KindValidation:           http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindInvalidToken:         http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindAudioFileNotFound:    http.StatusNotFound,
	KindInvalidRange:         http.StatusBadRequest,
	KindRangeNotSatisfiable:  http.StatusRequestedRangeNotSatisfiable,
	KindConfiguration:        http.StatusInternalServerError,
	KindMissingConfiguration: http.StatusInternalServerError,
	KindDatabase:             http.StatusInternalServerError,
	KindDatabaseUnavailable:  http.StatusInternalServerError,
	KindServiceBusy:          http.StatusServiceUnavailable,
	KindAIService:            http.StatusBadGateway,
	KindAIUnavailable:        http.StatusServiceUnavailable,
	KindSearch:               http.StatusInternalServerError,
	KindTimeout:              http.StatusGatewayTimeout,
}

// retryable mirrors the "Retryable" column of §7.
var retryable = map[Kind]bool{
	KindDatabase:            true,
	KindDatabaseUnavailable: true,
	KindServiceBusy:         true,
	KindAIService:           true,
	KindAIUnavailable:       true,
	KindTimeout:             true,
}

// Error is the typed error every component returns. It carries enough to
// render a correct status code and a sanitized message without ever
// leaking internal detail (stack traces, raw SQL, file paths) to callers.
type Error struct {
	Kind    Kind
	Message string
	// Detail is server-side-only context (e.g. the underlying error); never
	// placed on the wire.
	Detail error
	// FileSize is populated for KindRangeNotSatisfiable so handlers can
	// render `Content-Range: bytes */<size>`.
	FileSize int64
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Detail }

// Of constructs a new Error of the given kind.
func Of(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a new Error of the given kind, retaining the cause for
// server-side logs only.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Detail: cause}
}

// HTTPStatus returns the status code for a Kind, defaulting to 500.
func HTTPStatus(k Kind) int {
	if s, ok := httpStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Retryable reports whether callers should retry an error of this Kind.
func Retryable(k Kind) bool {
	return retryable[k]
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Wire is the sanitized, client-facing representation of an Error.
type Wire struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// Sanitize converts err into the wire representation, never leaking
// Detail. Unknown error types become a generic internal error.
func Sanitize(err error) (Wire, int) {
	apiErr, ok := As(err)
	if !ok {
		return Wire{Code: string(KindConfiguration), Message: "internal error"}, http.StatusInternalServerError
	}
	return Wire{Code: string(apiErr.Kind), Message: apiErr.Message}, HTTPStatus(apiErr.Kind)
}

// RespondJSON writes a sanitized JSON error response, logging the detailed
// error server-side first. Grounded on xg2g's RespondError.
func RespondJSON(w http.ResponseWriter, r *http.Request, err error) {
	wire, status := Sanitize(err)
	wire.RequestID = log.RequestIDFromContext(r.Context())

	logger := log.FromContext(r.Context())
	logEvt := logger.Error()
	if apiErr, ok := As(err); ok && apiErr.Detail != nil {
		logEvt = logEvt.Err(apiErr.Detail)
	}
	logEvt.Str("code", wire.Code).Int("status", status).Msg(err.Error())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(wire); encErr != nil {
		http.Error(w, wire.Message, status)
	}
}
