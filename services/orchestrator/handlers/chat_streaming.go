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
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/AleutianAI/finhelp/services/orchestrator/middleware"
	"github.com/AleutianAI/finhelp/services/orchestrator/observability"
	"github.com/AleutianAI/finhelp/services/orchestrator/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is the interval for sending keepalive pings on
	// event-framed replies. Set to 15s to stay well under typical LB
	// timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamingChatHandler relays a conversation to the completion provider and
// streams the assistant reply back as it is produced.
type StreamingChatHandler interface {
	// HandleChatStream handles POST /api/chat and POST /v1/chat/stream.
	//
	// # Description
	//
	// The flow is:
	//  1. Read and validate the conversation (a bare JSON array of messages)
	//  2. If the latest user message matches a canned question, reply with
	//     the canned answer without contacting the provider
	//  3. Open the provider stream (preamble prepended by the proxy)
	//  4. Write status 200 and forward each non-empty fragment immediately
	//  5. Close the reply
	//
	// # Outputs
	//
	// Raw framing (default):
	//   - 200, text/plain; charset=utf-8, chunked body of fragment bytes
	//   - Mid-stream failure aborts the connection (truncated chunked body)
	//
	// Event framing (Accept: text/event-stream):
	//   - event: token, data: {"type":"token","content":"..."}
	//   - event: done, data: {"type":"done","request_id":"..."}
	//   - event: error, data: {"type":"error","error":"..."} (no done follows)
	//
	// HTTP status before streaming starts:
	//   - 500 with datatypes.ErrorResponse for validation and upstream
	//     connect failures. Detail goes to logs only.
	//
	// # Examples
	//
	//	POST /api/chat
	//	[{"role":"assistant","content":"Welcome to FinHelp!..."},
	//	 {"role":"user","content":"What is an ETF?"}]
	//
	//	HTTP/1.1 200 OK
	//	Content-Type: text/plain; charset=utf-8
	//	Transfer-Encoding: chunked
	//
	//	An ETF is a fund that ...
	HandleChatStream(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// streamingChatHandler implements StreamingChatHandler.
//
// # Thread Safety
//
// Safe for concurrent use. Each request owns its encoder and stream.
type streamingChatHandler struct {
	opener            services.CompletionOpener
	canned            *datatypes.CannedTable
	tracer            trace.Tracer
	heartbeatInterval time.Duration
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamingChatHandler creates a StreamingChatHandler.
//
// # Inputs
//
//   - opener: Completion proxy. Must not be nil.
//   - canned: Canned answer table. Nil disables canned answers.
//
// # Examples
//
//	proxy := services.NewCompletionProxy(llmClient, services.ProxyConfig{})
//	handler := handlers.NewStreamingChatHandler(proxy, datatypes.DefaultCannedTable())
//	router.POST("/api/chat", handler.HandleChatStream)
//
// # Limitations
//
//   - Panics on nil opener
func NewStreamingChatHandler(opener services.CompletionOpener, canned *datatypes.CannedTable) StreamingChatHandler {
	if opener == nil {
		panic("NewStreamingChatHandler: opener must not be nil")
	}
	return &streamingChatHandler{
		opener:            opener,
		canned:            canned,
		tracer:            otel.Tracer("finhelp.orchestrator.handlers.chat_streaming"),
		heartbeatInterval: heartbeatInterval,
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

func (h *streamingChatHandler) HandleChatStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointChatStream
	requestID := requestIDFrom(c)

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	// Track active stream (for metrics)
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, time.Since(startTime).Seconds(), success)
		}
	}()

	// Step 1: Read and validate the conversation
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, datatypes.MaxConversationBytes))
	if err != nil {
		h.reject(c, span, requestID,
			datatypes.NewValidationError("failed to read request body", err),
			observability.ErrorCodeValidation)
		return
	}
	messages, err := datatypes.ParseConversation(body)
	if err != nil {
		h.reject(c, span, requestID, err, observability.ErrorCodeValidation)
		return
	}
	span.SetAttributes(attribute.Int("request.message_count", len(messages)))

	// Step 2: Choose framing
	encoder, err := NewFragmentEncoder(c.Writer, c.GetHeader("Accept"))
	if err != nil {
		h.reject(c, span, requestID, err, observability.ErrorCodeInternal)
		return
	}

	// Step 3: Canned answers short-circuit the provider
	if utterance, ok := datatypes.LatestUserUtterance(messages); ok {
		if answer, hit := h.canned.Lookup(utterance); hit {
			span.SetAttributes(attribute.Bool("relay.canned", true))
			if m := observability.DefaultMetrics; m != nil {
				m.RecordCannedHit(endpoint)
			}
			slog.Info("Answered from canned table", "requestId", requestID)
			if err := h.writeSingle(encoder, answer, requestID); err != nil {
				h.clientGone(span, endpoint, requestID, err)
				return
			}
			success = true
			span.SetStatus(codes.Ok, "canned answer sent")
			return
		}
	}

	// Step 4: Open the provider stream before any bytes are written
	stream, err := h.opener.Open(ctx, messages)
	if err != nil {
		h.reject(c, span, requestID, err, observability.ErrorCodeUpstreamConnect)
		return
	}
	defer stream.Close()

	// Step 5: Commit to a streamed reply
	if err := encoder.Begin(); err != nil {
		h.clientGone(span, endpoint, requestID, err)
		return
	}
	stopHeartbeat := h.startHeartbeat(ctx, encoder, endpoint)
	defer stopHeartbeat()

	// Step 6: Relay fragments
	relayErr := h.relay(stream, encoder, endpoint, startTime, span)
	span.SetAttributes(attribute.Int("stream.fragment_count", stream.Count()))
	if m := observability.DefaultMetrics; m != nil {
		m.RecordFragments(endpoint, h.opener.Model(), stream.Count())
	}

	if relayErr != nil {
		if isClientGone(relayErr) {
			h.clientGone(span, endpoint, requestID, relayErr)
			return
		}
		h.failStream(span, encoder, endpoint, requestID, stream.Count(), relayErr, stopHeartbeat)
		return
	}

	// Step 7: Close the reply
	stopHeartbeat()
	if err := encoder.Finish(requestID); err != nil {
		h.clientGone(span, endpoint, requestID, err)
		return
	}

	success = true
	span.SetStatus(codes.Ok, "stream completed successfully")
}

// =============================================================================
// Helper Methods
// =============================================================================

// relay forwards fragments until the stream ends.
//
// # Outputs
//
//   - error: nil on normal end. A transport error if the client write
//     failed, otherwise the stream's error.
func (h *streamingChatHandler) relay(
	stream *services.FragmentStream,
	encoder FragmentEncoder,
	endpoint observability.Endpoint,
	startTime time.Time,
	span trace.Span,
) error {
	first := true
	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			ttff := time.Since(startTime).Seconds()
			span.SetAttributes(attribute.Float64("stream.time_to_first_fragment_seconds", ttff))
			if m := observability.DefaultMetrics; m != nil {
				m.RecordTimeToFirstFragment(endpoint, ttff)
			}
		}
		if err := encoder.WriteFragment(fragment); err != nil {
			return datatypes.NewTransportError("failed to write fragment to client", err)
		}
	}
}

// writeSingle writes a complete one-fragment reply.
func (h *streamingChatHandler) writeSingle(encoder FragmentEncoder, text, requestID string) error {
	if err := encoder.Begin(); err != nil {
		return err
	}
	if err := encoder.WriteFragment(text); err != nil {
		return err
	}
	return encoder.Finish(requestID)
}

// reject answers a request that failed before streaming began.
func (h *streamingChatHandler) reject(
	c *gin.Context,
	span trace.Span,
	requestID string,
	err error,
	code observability.ErrorCode,
) {
	kind := datatypes.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	slog.Error("Relay request failed before streaming",
		"requestId", requestID,
		"kind", kind,
		"error", err,
	)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(observability.EndpointChatStream, code)
	}
	c.JSON(http.StatusInternalServerError, datatypes.NewErrorResponse(err, requestID))
}

// clientGone records a client that disconnected mid-reply.
func (h *streamingChatHandler) clientGone(span trace.Span, endpoint observability.Endpoint, requestID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "client disconnected")
	slog.Warn("Client went away during relay", "requestId", requestID, "error", err)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
		m.RecordClientDisconnect(endpoint)
	}
}

// failStream terminates a reply after an upstream failure.
//
// # Description
//
// Event framing gets an error event and no done event. Raw framing has no
// in-band signal, so the handler panics with http.ErrAbortHandler and
// net/http drops the connection mid-body.
func (h *streamingChatHandler) failStream(
	span trace.Span,
	encoder FragmentEncoder,
	endpoint observability.Endpoint,
	requestID string,
	fragmentCount int,
	streamErr error,
	stopHeartbeat func(),
) {
	span.RecordError(streamErr)
	span.SetStatus(codes.Error, "upstream stream failed")
	slog.Error("Upstream stream failed mid-reply",
		"requestId", requestID,
		"error", streamErr,
		"fragmentCount", fragmentCount,
	)
	if m := observability.DefaultMetrics; m != nil {
		code := observability.ErrorCodeUpstreamStream
		if errors.Is(streamErr, context.DeadlineExceeded) {
			code = observability.ErrorCodeTimeout
		}
		m.RecordError(endpoint, code)
	}

	stopHeartbeat()
	if err := encoder.Fail(datatypes.RelayErrorMessage); err != nil {
		if errors.Is(err, errAbortStream) {
			panic(http.ErrAbortHandler)
		}
		slog.Warn("Failed to write error event", "requestId", requestID, "error", err)
	}
}

// startHeartbeat runs keepalives until the returned stop func is called.
// Stop waits for the heartbeat goroutine, so no write outlives the handler.
func (h *streamingChatHandler) startHeartbeat(
	ctx context.Context,
	encoder FragmentEncoder,
	endpoint observability.Endpoint,
) func() {
	if !encoder.SupportsKeepAlive() {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.runHeartbeat(ctx, encoder, endpoint, done)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// runHeartbeat sends keepalives every heartbeatInterval.
//
// # Limitations
//
//   - The first failed write ends the heartbeat; the relay loop will see
//     the same failure on its next write.
//
// # Assumptions
//
//   - Encoder's KeepAlive is safe to call concurrently with WriteFragment.
func (h *streamingChatHandler) runHeartbeat(
	ctx context.Context,
	encoder FragmentEncoder,
	endpoint observability.Endpoint,
	done <-chan struct{},
) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := encoder.KeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

func isClientGone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, datatypes.ErrTransport)
}

func requestIDFrom(c *gin.Context) string {
	if id := middleware.GetRequestID(c); id != "" {
		return id
	}
	return uuid.New().String()
}

var _ StreamingChatHandler = (*streamingChatHandler)(nil)
