// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the relay.
//
// Services sit between the HTTP handlers and the completion provider
// clients. They own the provider-facing rules: which preamble is sent,
// which generation parameters apply, and how long a single upstream
// completion may run. Handlers only see fragments and classified errors.
package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/finhelp/services/llm"
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// proxyTracer is the OpenTelemetry tracer for CompletionProxy operations.
var proxyTracer = otel.Tracer("finhelp.orchestrator.services.completion_proxy")

// DefaultCompletionTimeout bounds one whole upstream completion when
// ProxyConfig leaves CompletionTimeout unset.
const DefaultCompletionTimeout = 2 * time.Minute

// Compile-time interface implementation check.
var _ CompletionOpener = (*CompletionProxy)(nil)

// =============================================================================
// Interfaces
// =============================================================================

// CompletionOpener opens one upstream completion for a validated conversation.
//
// # Description
//
// This is the seam the streaming handler depends on. The production
// implementation is CompletionProxy; tests substitute it with a proxy built
// over a mock llm.LLMClient.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type CompletionOpener interface {
	// Open starts a streaming completion for messages. On error no stream
	// is returned and nothing needs closing. The returned error is a
	// *datatypes.RelayError of kind upstream_connect.
	Open(ctx context.Context, messages []datatypes.Message) (*FragmentStream, error)

	// Model reports the provider model identifier, for labeling.
	Model() string
}

// =============================================================================
// CompletionProxy
// =============================================================================

// ProxyConfig configures NewCompletionProxy.
type ProxyConfig struct {
	// SystemPreamble is prepended to every forwarded conversation.
	// Empty uses datatypes.DefaultSystemPreamble.
	SystemPreamble string

	// Params are passed to the provider unchanged.
	Params llm.GenerationParams

	// CompletionTimeout bounds a whole completion, from open to last
	// fragment. It is not an idle timeout: a reply still streaming when it
	// elapses fails as upstream_stream. Zero uses DefaultCompletionTimeout.
	CompletionTimeout time.Duration
}

// CompletionProxy turns a client conversation into a provider completion.
//
// # Description
//
// Open prefixes the system preamble, applies the completion timeout, and
// opens the provider stream. The conversation the client sent is never
// modified.
//
// # Thread Safety
//
// Safe for concurrent use. Each Open returns an independent FragmentStream.
type CompletionProxy struct {
	client   llm.LLMClient
	preamble string
	params   llm.GenerationParams
	timeout  time.Duration
}

// NewCompletionProxy creates a CompletionProxy over client.
//
// # Limitations
//
//   - Panics if client is nil.
func NewCompletionProxy(client llm.LLMClient, cfg ProxyConfig) *CompletionProxy {
	if client == nil {
		panic("NewCompletionProxy: client must not be nil")
	}
	if cfg.SystemPreamble == "" {
		cfg.SystemPreamble = datatypes.DefaultSystemPreamble
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultCompletionTimeout
	}
	return &CompletionProxy{
		client:   client,
		preamble: cfg.SystemPreamble,
		params:   cfg.Params,
		timeout:  cfg.CompletionTimeout,
	}
}

// Model implements CompletionOpener.
func (p *CompletionProxy) Model() string {
	return p.client.Model()
}

// Open implements CompletionOpener.
//
// # Inputs
//
//   - ctx: Request context. Cancelling it aborts the upstream call.
//   - messages: Validated conversation, oldest first.
//
// # Outputs
//
//   - *FragmentStream: Open stream. Caller must Close it.
//   - error: *datatypes.RelayError (upstream_connect) if the provider
//     could not be reached or rejected the request.
func (p *CompletionProxy) Open(ctx context.Context, messages []datatypes.Message) (*FragmentStream, error) {
	ctx, span := proxyTracer.Start(ctx, "CompletionProxy.Open")
	defer span.End()
	span.SetAttributes(
		attribute.Int("relay.num_messages", len(messages)),
		attribute.String("llm.model", p.client.Model()),
	)

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	forwarded := datatypes.WithSystemPreamble(p.preamble, messages)

	upstream, err := p.client.OpenChatStream(streamCtx, forwarded, p.params)
	if err != nil {
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream open failed")
		slog.Error("Failed to open upstream completion", "model", p.client.Model(), "error", err)
		return nil, datatypes.NewUpstreamConnectError("failed to open completion stream", err)
	}

	return &FragmentStream{
		ctx:      streamCtx,
		cancel:   cancel,
		upstream: upstream,
	}, nil
}

// =============================================================================
// FragmentStream
// =============================================================================

// FragmentStream yields the non-empty text increments of one completion.
//
// # Thread Safety
//
// Not safe for concurrent use. One goroutine reads; Close may be called
// from any goroutine.
type FragmentStream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	upstream llm.CompletionStream
	count    int
}

// Next returns the next non-empty fragment.
//
// # Outputs
//
//   - string: Fragment text, never empty when err is nil.
//   - error: io.EOF at normal end. context.Canceled if the request context
//     was cancelled. Otherwise a *datatypes.RelayError of kind
//     upstream_stream, which wraps context.DeadlineExceeded when the
//     completion timeout elapsed.
func (s *FragmentStream) Next() (string, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return "", s.classifyContextErr(err)
		}
		fragment, err := s.upstream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return "", s.classifyContextErr(ctxErr)
			}
			return "", datatypes.NewUpstreamStreamError("completion stream failed", err)
		}
		if fragment == "" {
			continue
		}
		s.count++
		return fragment, nil
	}
}

// Count reports how many fragments Next has returned.
func (s *FragmentStream) Count() int {
	return s.count
}

// Close releases the upstream connection and the timeout timer.
func (s *FragmentStream) Close() error {
	s.cancel()
	return s.upstream.Close()
}

func (s *FragmentStream) classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return datatypes.NewUpstreamStreamError("completion timeout elapsed", err)
	}
	return err
}
