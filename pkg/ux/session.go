// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

var (
	// ErrEmptyUtterance is returned by Send for blank input. No turn starts.
	ErrEmptyUtterance = errors.New("empty utterance")

	// ErrTurnInProgress is returned by Send while another turn holds the
	// input lock.
	ErrTurnInProgress = errors.New("a turn is already in progress")
)

// UpdateFunc observes the conversation after every change within a turn.
// It runs on the goroutine calling Send and must not call Send.
type UpdateFunc func(messages []datatypes.Message, state TurnState)

// SessionConfig configures a ChatSession.
type SessionConfig struct {
	// Endpoint is the relay chat URL, e.g. http://localhost:12210/api/chat.
	Endpoint string

	// HTTPClient defaults to a client without a timeout; replies stream for
	// as long as the relay allows.
	HTTPClient *http.Client

	// Canned answers matched before any request is sent. Nil disables
	// client-side matching.
	Canned *datatypes.CannedTable

	// EventStream requests SSE framing instead of raw text.
	EventStream bool

	// Seed replaces the greeting as the conversation's opening messages.
	Seed []datatypes.Message
}

// ChatSession runs chat turns against the relay.
//
// # Description
//
// Each Send appends the user message and an empty assistant placeholder,
// posts the conversation, and folds the streamed reply into the placeholder.
// Any failure overwrites the placeholder with datatypes.ClientErrorMessage.
// Failed turns are never retried.
//
// # Thread Safety
//
// Safe for concurrent use. Only one turn runs at a time; a concurrent Send
// returns ErrTurnInProgress.
type ChatSession struct {
	endpoint    string
	client      *http.Client
	canned      *datatypes.CannedTable
	reader      StreamReader
	eventStream bool
	conv        *Conversation

	mu    sync.Mutex
	state TurnState
}

// NewChatSession creates a session seeded with the greeting (or cfg.Seed).
func NewChatSession(cfg SessionConfig) (*ChatSession, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("relay endpoint is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	conv := NewGreetingConversation()
	if len(cfg.Seed) > 0 {
		conv = NewConversation(cfg.Seed...)
	}
	return &ChatSession{
		endpoint:    cfg.Endpoint,
		client:      client,
		canned:      cfg.Canned,
		reader:      NewStreamReader(cfg.EventStream),
		eventStream: cfg.EventStream,
		conv:        conv,
	}, nil
}

// Conversation returns the session's log.
func (s *ChatSession) Conversation() *Conversation {
	return s.conv
}

// State returns the current turn state.
func (s *ChatSession) State() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send runs one turn for utterance.
//
// # Description
//
// A canned answer settles the turn immediately without a request. Otherwise
// the reply is streamed into the conversation, calling onUpdate after every
// fragment. The session is back to Idle when Send returns.
//
// # Inputs
//
//   - ctx: Cancels the request and the reply read.
//   - utterance: User input. Surrounding whitespace is trimmed.
//   - onUpdate: May be nil.
//
// # Outputs
//
//   - TurnOutcome: OutcomeSuccess or OutcomeError for a turn that ran.
//   - error: The failure behind OutcomeError, for logging. The conversation
//     already shows ClientErrorMessage. ErrEmptyUtterance and
//     ErrTurnInProgress mean no turn ran.
func (s *ChatSession) Send(ctx context.Context, utterance string, onUpdate UpdateFunc) (TurnOutcome, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return OutcomeNone, ErrEmptyUtterance
	}
	if onUpdate == nil {
		onUpdate = func([]datatypes.Message, TurnState) {}
	}

	s.mu.Lock()
	if s.state.InputLocked() {
		s.mu.Unlock()
		return OutcomeNone, ErrTurnInProgress
	}
	_ = s.state.Begin()
	s.mu.Unlock()
	defer s.reset()

	if answer, ok := s.canned.Lookup(utterance); ok {
		s.conv.Append(datatypes.NewUserMessage(utterance), datatypes.NewAssistantMessage(answer))
		s.settle(OutcomeSuccess, onUpdate)
		return OutcomeSuccess, nil
	}

	s.conv.Append(datatypes.NewUserMessage(utterance))
	request := s.requestMessages()
	s.conv.Append(datatypes.NewAssistantMessage(""))
	s.notify(onUpdate)

	if err := s.stream(ctx, request, onUpdate); err != nil {
		slog.Debug("chat turn failed", "error", err)
		_ = s.conv.ReplaceLast(datatypes.ClientErrorMessage)
		s.settle(OutcomeError, onUpdate)
		return OutcomeError, err
	}

	s.settle(OutcomeSuccess, onUpdate)
	return OutcomeSuccess, nil
}

// requestMessages is the history sent to the relay. An empty assistant reply
// stays in the log but is left out of requests, since the relay rejects
// messages without content.
func (s *ChatSession) requestMessages() []datatypes.Message {
	history := s.conv.Snapshot()
	request := make([]datatypes.Message, 0, len(history))
	for _, m := range history {
		if m.Role == datatypes.RoleAssistant && m.Content == "" {
			continue
		}
		request = append(request, m)
	}
	return request
}

func (s *ChatSession) stream(ctx context.Context, request []datatypes.Message, onUpdate UpdateFunc) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.eventStream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "text/plain")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return datatypes.NewTransportError("relay request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return datatypes.NewTransportError(
			fmt.Sprintf("relay returned %s", resp.Status), decodeErrorResponse(resp.Body))
	}

	return s.reader.Read(ctx, resp.Body, func(fragment string) error {
		s.mu.Lock()
		_ = s.state.Stream()
		s.mu.Unlock()
		if err := s.conv.AppendToLast(fragment); err != nil {
			return err
		}
		s.notify(onUpdate)
		return nil
	})
}

func (s *ChatSession) notify(onUpdate UpdateFunc) {
	onUpdate(s.conv.Snapshot(), s.State())
}

func (s *ChatSession) settle(outcome TurnOutcome, onUpdate UpdateFunc) {
	s.mu.Lock()
	_ = s.state.Settle(outcome)
	s.mu.Unlock()
	s.notify(onUpdate)
}

func (s *ChatSession) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.state.Reset()
}

// decodeErrorResponse extracts the relay's error code for logs. The body is
// best-effort; a missing or foreign body still yields an error.
func decodeErrorResponse(body io.Reader) error {
	var payload datatypes.ErrorResponse
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil || json.Unmarshal(data, &payload) != nil || payload.Error == "" {
		return errors.New("no error details")
	}
	return fmt.Errorf("%s (code %s, request %s)", payload.Error, payload.Code, payload.RequestID)
}
