// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

// maxSSELineBytes bounds a single SSE line.
const maxSSELineBytes = 1024 * 1024

var (
	// ErrStreamInterrupted means the relay ended the reply without
	// signalling completion.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrChainBroken means an SSE event failed hash-chain verification.
	ErrChainBroken = errors.New("event hash chain broken")
)

// FragmentHandler receives decoded reply text in arrival order. Returning
// an error stops reading.
type FragmentHandler func(fragment string) error

// StreamReader consumes one relayed reply.
//
// # Description
//
// Read blocks until the reply completes, fails, or ctx is cancelled.
// Completion returns nil. Any other end of the stream returns an error
// matching datatypes.ErrTransport, so a truncated reply is never mistaken
// for a complete one. Handler errors are returned unchanged.
//
// # Thread Safety
//
// A reader holds no per-stream state and may be shared. The caller closes r.
type StreamReader interface {
	Read(ctx context.Context, r io.Reader, onFragment FragmentHandler) error
}

// NewStreamReader returns the reader for the framing the relay was asked
// for: SSE when eventStream is true, raw text otherwise.
func NewStreamReader(eventStream bool) StreamReader {
	if eventStream {
		return NewSSEStreamReader()
	}
	return NewRawStreamReader()
}

// =============================================================================
// Raw Stream Reader
// =============================================================================

type rawStreamReader struct{}

// NewRawStreamReader reads a text/plain reply. A clean EOF is completion;
// the relay signals failure by truncating the response.
func NewRawStreamReader() StreamReader {
	return &rawStreamReader{}
}

func (rawStreamReader) Read(ctx context.Context, r io.Reader, onFragment FragmentHandler) error {
	decoder := NewFragmentDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return datatypes.NewTransportError("reply cancelled", err)
		}
		text, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return datatypes.NewTransportError("reply read failed", err)
		}
		if err := onFragment(text); err != nil {
			return err
		}
	}
}

// =============================================================================
// SSE Stream Reader
// =============================================================================

type sseStreamReader struct{}

// NewSSEStreamReader reads a text/event-stream reply. Only a done event is
// completion. Every event's hash chain is verified.
func NewSSEStreamReader() StreamReader {
	return &sseStreamReader{}
}

func (sseStreamReader) Read(ctx context.Context, r io.Reader, onFragment FragmentHandler) error {
	parser := NewSSEParser()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineBytes)
	prevHash := ""

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return datatypes.NewTransportError("reply cancelled", err)
		}

		event, err := parser.ParseLine(scanner.Text())
		if err != nil {
			return datatypes.NewTransportError("malformed event", err)
		}
		if event == nil {
			continue
		}
		if !event.VerifyChain(prevHash) {
			return datatypes.NewTransportError("event "+event.Id, ErrChainBroken)
		}
		prevHash = event.Hash

		switch event.Type {
		case datatypes.StreamEventToken:
			if event.Content == "" {
				continue
			}
			if err := onFragment(event.Content); err != nil {
				return err
			}
		case datatypes.StreamEventError:
			return datatypes.NewTransportError(
				fmt.Sprintf("relay reported failure (request %s)", event.RequestID), ErrStreamInterrupted)
		case datatypes.StreamEventDone:
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return datatypes.NewTransportError("reply read failed", err)
	}
	return datatypes.NewTransportError("reply ended without done event", ErrStreamInterrupted)
}

// Compile-time interface checks
var (
	_ StreamReader = (*rawStreamReader)(nil)
	_ StreamReader = (*sseStreamReader)(nil)
)
