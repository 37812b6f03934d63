// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errAbortStream is returned by a FragmentEncoder whose framing has no way
// to signal failure in-band. The handler must abort the connection so the
// client sees a truncated body instead of a complete reply.
var errAbortStream = errors.New("stream must be aborted")

// =============================================================================
// Interface Definition
// =============================================================================

// FragmentEncoder frames reply fragments on an HTTP response.
//
// # Description
//
// Two framings exist. Raw framing writes fragment bytes as a chunked
// text/plain body; end of body means the reply is complete. Event framing
// writes SSE token/error/done events through SSEWriter.
//
// # Thread Safety
//
// KeepAlive may be called concurrently with WriteFragment. Other methods are
// called from the relay goroutine only.
type FragmentEncoder interface {
	// Begin writes status and headers. Nothing may be written before it.
	Begin() error

	// WriteFragment writes one fragment and flushes it to the client.
	WriteFragment(fragment string) error

	// KeepAlive writes framing-level filler, if the framing has any.
	KeepAlive() error

	// Finish marks the reply complete.
	Finish(requestID string) error

	// Fail marks the reply failed. clientMsg must be client-safe. Returns
	// errAbortStream when the framing cannot express failure.
	Fail(clientMsg string) error

	// SupportsKeepAlive reports whether KeepAlive writes anything.
	SupportsKeepAlive() bool
}

// NewFragmentEncoder picks the framing for a request from its Accept header.
//
// # Outputs
//
//   - FragmentEncoder: Event framing when accept lists text/event-stream,
//     raw framing otherwise.
//   - error: Non-nil if w cannot flush.
func NewFragmentEncoder(w http.ResponseWriter, accept string) (FragmentEncoder, error) {
	if wantsEventStream(accept) {
		writer, err := NewSSEWriter(w)
		if err != nil {
			return nil, err
		}
		return &sseEncoder{header: w, writer: writer}, nil
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &rawEncoder{writer: w, flusher: flusher}, nil
}

func wantsEventStream(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(mediaType), "text/event-stream") {
			return true
		}
	}
	return false
}

// =============================================================================
// Raw framing
// =============================================================================

type rawEncoder struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func (e *rawEncoder) Begin() error {
	h := e.writer.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
	e.writer.WriteHeader(http.StatusOK)
	e.flusher.Flush()
	return nil
}

func (e *rawEncoder) WriteFragment(fragment string) error {
	if _, err := io.WriteString(e.writer, fragment); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	e.flusher.Flush()
	return nil
}

func (e *rawEncoder) KeepAlive() error { return nil }

func (e *rawEncoder) SupportsKeepAlive() bool { return false }

func (e *rawEncoder) Finish(string) error { return nil }

func (e *rawEncoder) Fail(string) error { return errAbortStream }

// =============================================================================
// Event framing
// =============================================================================

type sseEncoder struct {
	header http.ResponseWriter
	writer SSEWriter
}

func (e *sseEncoder) Begin() error {
	SetSSEHeaders(e.header)
	e.header.WriteHeader(http.StatusOK)
	return nil
}

func (e *sseEncoder) WriteFragment(fragment string) error {
	return e.writer.WriteToken(fragment)
}

func (e *sseEncoder) KeepAlive() error {
	return e.writer.WriteKeepAlive()
}

func (e *sseEncoder) SupportsKeepAlive() bool { return true }

func (e *sseEncoder) Finish(requestID string) error {
	return e.writer.WriteDone(requestID)
}

func (e *sseEncoder) Fail(clientMsg string) error {
	return e.writer.WriteError(clientMsg)
}

var (
	_ FragmentEncoder = (*rawEncoder)(nil)
	_ FragmentEncoder = (*sseEncoder)(nil)
)
