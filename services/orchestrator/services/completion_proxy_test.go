// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/finhelp/services/llm"
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

// MockLLMClient implements llm.LLMClient for proxy testing.
type MockLLMClient struct {
	mu sync.Mutex

	// StreamTokens are emitted in order by the opened stream.
	StreamTokens []string
	// OpenError is returned by OpenChatStream.
	OpenError error
	// StreamError is returned after the tokens instead of io.EOF.
	StreamError error
	// Block makes the stream wait for context cancellation after its tokens.
	Block bool
	// Pace is the wait before each token.
	Pace time.Duration

	OpenCallCount int
	LastMessages  []datatypes.Message
	LastParams    llm.GenerationParams
	closed        bool
}

func (m *MockLLMClient) Model() string { return "mock-model" }

func (m *MockLLMClient) OpenChatStream(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams) (llm.CompletionStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCallCount++
	m.LastMessages = messages
	m.LastParams = params
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	return &mockStream{ctx: ctx, owner: m, tokens: m.StreamTokens, err: m.StreamError, block: m.Block, pace: m.Pace}, nil
}

func (m *MockLLMClient) wasClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockStream struct {
	ctx    context.Context
	owner  *MockLLMClient
	tokens []string
	next   int
	err    error
	block  bool
	pace   time.Duration
}

func (s *mockStream) Recv() (string, error) {
	if s.next < len(s.tokens) {
		if s.pace > 0 {
			select {
			case <-time.After(s.pace):
			case <-s.ctx.Done():
				return "", s.ctx.Err()
			}
		}
		token := s.tokens[s.next]
		s.next++
		return token, nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *mockStream) Close() error {
	s.owner.mu.Lock()
	s.owner.closed = true
	s.owner.mu.Unlock()
	return nil
}

func collect(t *testing.T, stream *FragmentStream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		fragment, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, fragment)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestNewCompletionProxy_PanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() {
		NewCompletionProxy(nil, ProxyConfig{})
	})
}

func TestCompletionProxy_Open_PrependsPreamble(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{StreamTokens: []string{"Hi"}}
	temp := float32(0.2)
	proxy := NewCompletionProxy(mock, ProxyConfig{Params: llm.GenerationParams{Temperature: &temp}})

	conversation := []datatypes.Message{
		datatypes.NewAssistantMessage(datatypes.Greeting),
		datatypes.NewUserMessage("What is an ETF?"),
	}
	stream, err := proxy.Open(context.Background(), conversation)
	require.NoError(t, err)
	defer stream.Close()

	require.Len(t, mock.LastMessages, 3)
	assert.Equal(t, datatypes.RoleSystem, mock.LastMessages[0].Role)
	assert.Equal(t, datatypes.DefaultSystemPreamble, mock.LastMessages[0].Content)
	assert.Equal(t, conversation, mock.LastMessages[1:])
	assert.Len(t, conversation, 2, "caller's slice must be untouched")
	require.NotNil(t, mock.LastParams.Temperature)
	assert.Equal(t, temp, *mock.LastParams.Temperature)
	assert.Equal(t, "mock-model", proxy.Model())
}

func TestCompletionProxy_Open_CustomPreamble(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{}
	proxy := NewCompletionProxy(mock, ProxyConfig{SystemPreamble: "Answer in French."})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "Answer in French.", mock.LastMessages[0].Content)
}

func TestCompletionProxy_Open_ConnectFailure(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{OpenError: errors.New("dial tcp: connection refused")}
	proxy := NewCompletionProxy(mock, ProxyConfig{})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})

	assert.Nil(t, stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, datatypes.ErrUpstreamConnect)
	assert.Equal(t, datatypes.KindUpstreamConnect, datatypes.KindOf(err))
}

func TestFragmentStream_SkipsEmptyFragments(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{StreamTokens: []string{"", "Hi", "", " there", "!", ""}}
	proxy := NewCompletionProxy(mock, ProxyConfig{})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)

	fragments, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there", "!"}, fragments)
	assert.Equal(t, 3, stream.Count())

	require.NoError(t, stream.Close())
	assert.True(t, mock.wasClosed())
}

func TestFragmentStream_ZeroFragments(t *testing.T) {
	t.Parallel()
	proxy := NewCompletionProxy(&MockLLMClient{}, ProxyConfig{})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	fragments, err := collect(t, stream)
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestFragmentStream_MidStreamFailure(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{StreamTokens: []string{"Partial"}, StreamError: errors.New("connection reset by peer")}
	proxy := NewCompletionProxy(mock, ProxyConfig{})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	fragments, err := collect(t, stream)
	assert.Equal(t, []string{"Partial"}, fragments)
	assert.ErrorIs(t, err, datatypes.ErrUpstreamStream)
}

func TestFragmentStream_CompletionTimeout(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{StreamTokens: []string{"slow"}, Block: true}
	proxy := NewCompletionProxy(mock, ProxyConfig{CompletionTimeout: 20 * time.Millisecond})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	fragments, err := collect(t, stream)
	assert.Equal(t, []string{"slow"}, fragments)
	assert.ErrorIs(t, err, datatypes.ErrUpstreamStream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFragmentStream_CompletionTimeoutCoversSteadyStream(t *testing.T) {
	t.Parallel()
	tokens := make([]string, 50)
	for i := range tokens {
		tokens[i] = "x"
	}
	// Fragments arrive well inside the timeout, but the whole reply does not.
	mock := &MockLLMClient{StreamTokens: tokens, Pace: 10 * time.Millisecond}
	proxy := NewCompletionProxy(mock, ProxyConfig{CompletionTimeout: 100 * time.Millisecond})

	stream, err := proxy.Open(context.Background(), []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	fragments, err := collect(t, stream)
	assert.NotEmpty(t, fragments)
	assert.Less(t, len(fragments), len(tokens), "the reply is cut off at the deadline")
	assert.ErrorIs(t, err, datatypes.ErrUpstreamStream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFragmentStream_ClientCancellation(t *testing.T) {
	t.Parallel()
	mock := &MockLLMClient{Block: true}
	proxy := NewCompletionProxy(mock, ProxyConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := proxy.Open(ctx, []datatypes.Message{datatypes.NewUserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	cancel()
	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, datatypes.ErrUpstreamStream)
}
