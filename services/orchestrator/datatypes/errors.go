// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
)

// =============================================================================
// Client-facing Messages
// =============================================================================

const (
	// RelayErrorMessage is the only error text the relay ever returns to a
	// caller. Diagnostic detail goes to operator logs.
	RelayErrorMessage = "An error occurred while processing the request."

	// ClientErrorMessage replaces an in-flight assistant reply when the
	// client could not complete the exchange.
	ClientErrorMessage = "Sorry, there was an error processing your request."
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind categorizes relay failures.
type ErrorKind string

const (
	// KindValidation is a malformed conversation, rejected before any
	// network call.
	KindValidation ErrorKind = "validation_error"

	// KindUpstreamConnect means the provider stream could not be opened.
	KindUpstreamConnect ErrorKind = "upstream_connect_error"

	// KindUpstreamStream means the provider stream failed after it opened.
	KindUpstreamStream ErrorKind = "upstream_stream_error"

	// KindTransport is a network failure between a client and the relay.
	KindTransport ErrorKind = "transport_error"
)

// Sentinel errors matched by errors.Is against a *RelayError of that kind.
var (
	ErrValidation      = errors.New("validation error")
	ErrUpstreamConnect = errors.New("upstream connect error")
	ErrUpstreamStream  = errors.New("upstream stream error")
	ErrTransport       = errors.New("transport error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindUpstreamConnect:
		return ErrUpstreamConnect
	case KindUpstreamStream:
		return ErrUpstreamStream
	case KindTransport:
		return ErrTransport
	default:
		return nil
	}
}

// =============================================================================
// RelayError
// =============================================================================

// RelayError is the structured error type for the relay pipeline.
//
// # Description
//
// RelayError carries the failure kind, an operator-facing message, and the
// underlying cause. Error() includes the cause for logs; UserMessage() is the
// only text safe to return to a caller.
//
// # Examples
//
//	err := datatypes.NewUpstreamConnectError("open stream", cause)
//	if errors.Is(err, datatypes.ErrUpstreamConnect) { ... }
//
//	var relayErr *datatypes.RelayError
//	if errors.As(err, &relayErr) {
//	    slog.Error("relay failed", "kind", relayErr.Kind, "error", relayErr)
//	}
type RelayError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RelayError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *RelayError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// UserMessage returns the caller-safe message.
func (e *RelayError) UserMessage() string {
	return RelayErrorMessage
}

// NewValidationError builds a KindValidation error.
func NewValidationError(msg string, err error) *RelayError {
	return &RelayError{Kind: KindValidation, Message: msg, Err: err}
}

// NewUpstreamConnectError builds a KindUpstreamConnect error.
func NewUpstreamConnectError(msg string, err error) *RelayError {
	return &RelayError{Kind: KindUpstreamConnect, Message: msg, Err: err}
}

// NewUpstreamStreamError builds a KindUpstreamStream error.
func NewUpstreamStreamError(msg string, err error) *RelayError {
	return &RelayError{Kind: KindUpstreamStream, Message: msg, Err: err}
}

// NewTransportError builds a KindTransport error.
func NewTransportError(msg string, err error) *RelayError {
	return &RelayError{Kind: KindTransport, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err is not a RelayError.
func KindOf(err error) ErrorKind {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return ""
}

// =============================================================================
// Wire Representation
// =============================================================================

// ErrorResponse is the JSON body returned when a request fails before any
// stream bytes have been written.
//
// # Examples
//
//	{"error":"An error occurred while processing the request.","code":"validation_error"}
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      ErrorKind `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewErrorResponse converts err into its caller-safe representation. A
// RelayError anywhere in the chain supplies the message and code; anything
// else gets RelayErrorMessage and no code.
func NewErrorResponse(err error, requestID string) ErrorResponse {
	resp := ErrorResponse{Error: RelayErrorMessage, RequestID: requestID}
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		resp.Error = relayErr.UserMessage()
		resp.Code = relayErr.Kind
	}
	return resp
}
