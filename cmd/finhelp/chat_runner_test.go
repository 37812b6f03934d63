// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/finhelp/pkg/ux"
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// Test Helpers
// =============================================================================

// MockInputReader returns canned lines, then io.EOF.
type MockInputReader struct {
	inputs []string
	index  int
}

func NewMockInputReader(inputs []string) *MockInputReader {
	return &MockInputReader{inputs: inputs}
}

func (m *MockInputReader) ReadLine() (string, error) {
	if m.index >= len(m.inputs) {
		return "", io.EOF
	}
	line := m.inputs[m.index]
	m.index++
	return line, nil
}

// fakeRelay answers /api/chat with a fixed raw body and counts requests.
func fakeRelay(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newTestRunner(t *testing.T, relay string, inputs []string, out *bytes.Buffer) (*ChatRunner, *ux.ChatSession) {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.RelayURL = relay
	session, err := newSession(cfg, nil)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	runner := NewChatRunner(ChatRunnerConfig{
		Session:  session,
		Input:    NewMockInputReader(inputs),
		Renderer: ux.NewTurnRenderer(out, ux.RenderMachine),
		Out:      out,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return runner, session
}

// =============================================================================
// Input Reader Tests
// =============================================================================

func TestMockInputReader_ReturnsEOFWhenExhausted(t *testing.T) {
	reader := NewMockInputReader([]string{"only"})
	if _, err := reader.ReadLine(); err != nil {
		t.Fatalf("first ReadLine(): %v", err)
	}
	if _, err := reader.ReadLine(); err != io.EOF {
		t.Errorf("second ReadLine(): got %v, want io.EOF", err)
	}
}

func TestStdinReader_ReadLine(t *testing.T) {
	reader := NewStdinReader(strings.NewReader("first\r\nsecond\nlast"))

	for _, want := range []string{"first", "second", "last"} {
		got, err := reader.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine(): unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("ReadLine(): got %q, want %q", got, want)
		}
	}
	if _, err := reader.ReadLine(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestInputModel_EnterSubmitsTrimmedValue(t *testing.T) {
	m := newInputModel("> ", nil)
	m.input.SetValue("  what is APR?  ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := next.(inputModel)

	if got.value != "what is APR?" || !got.done {
		t.Errorf("unexpected model after Enter: value=%q done=%v", got.value, got.done)
	}
	if cmd == nil {
		t.Error("Enter should quit the program")
	}
}

func TestInputModel_CtrlDOnEmptyLineIsEOF(t *testing.T) {
	m := newInputModel("> ", nil)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	if !next.(inputModel).eof {
		t.Error("Ctrl+D on an empty line should signal EOF")
	}

	m.input.SetValue("typing")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	if next.(inputModel).eof {
		t.Error("Ctrl+D with pending text must not signal EOF")
	}
}

func TestInputModel_HistoryNavigation(t *testing.T) {
	m := newInputModel("> ", []string{"one", "two"})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(inputModel)
	if m.input.Value() != "two" {
		t.Fatalf("Up: got %q, want two", m.input.Value())
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(inputModel)
	if m.input.Value() != "one" {
		t.Fatalf("Up again: got %q, want one", m.input.Value())
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(inputModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(inputModel)
	if m.input.Value() != "" {
		t.Errorf("Down past the newest entry should clear, got %q", m.input.Value())
	}
}

func TestInteractiveInputReader_RememberDedupesAndCaps(t *testing.T) {
	r := &InteractiveInputReader{maxHistory: 2}
	r.remember("a")
	r.remember("a")
	r.remember("b")
	r.remember("c")

	if len(r.history) != 2 || r.history[0] != "b" || r.history[1] != "c" {
		t.Errorf("unexpected history: %v", r.history)
	}
}

// =============================================================================
// ChatRunner Tests
// =============================================================================

func TestNewChatRunner_PanicsOnMissingDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	NewChatRunner(ChatRunnerConfig{})
}

func TestChatRunner_StreamsTurnsUntilExit(t *testing.T) {
	server, hits := fakeRelay(t, http.StatusOK, "Hello there.")
	var out bytes.Buffer
	runner, session := newTestRunner(t, server.URL,
		[]string{"", "   ", "What is APR?", "exit", "never sent"}, &out)

	failed, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if failed != 0 {
		t.Errorf("expected no failed turns, got %d", failed)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected 1 relay request, got %d", atomic.LoadInt32(hits))
	}
	if !strings.Contains(out.String(), "ANSWER: Hello there.\n") {
		t.Errorf("missing answer line: %q", out.String())
	}

	msgs := session.Conversation().Snapshot()
	if len(msgs) != 3 {
		t.Fatalf("expected greeting plus one turn, got %d messages", len(msgs))
	}
	if msgs[2].Role != datatypes.RoleAssistant || msgs[2].Content != "Hello there." {
		t.Errorf("unexpected reply: %+v", msgs[2])
	}
}

func TestChatRunner_CountsFailedTurnsAndContinues(t *testing.T) {
	server, hits := fakeRelay(t, http.StatusInternalServerError,
		`{"error":"An error occurred while processing the request.","code":"upstream_connect"}`)
	var out bytes.Buffer
	runner, session := newTestRunner(t, server.URL, []string{"first", "second"}, &out)

	failed, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if failed != 2 {
		t.Errorf("expected 2 failed turns, got %d", failed)
	}
	if atomic.LoadInt32(hits) != 2 {
		t.Errorf("expected 2 relay requests, got %d", atomic.LoadInt32(hits))
	}
	if strings.Count(out.String(), "ERROR: "+datatypes.ClientErrorMessage) != 2 {
		t.Errorf("expected two error lines: %q", out.String())
	}
	if session.State().InputLocked() {
		t.Error("input should be unlocked after a failed turn")
	}
}

func TestChatRunner_CannedQuestionSkipsRelay(t *testing.T) {
	server, hits := fakeRelay(t, http.StatusOK, "unused")
	var out bytes.Buffer
	runner, _ := newTestRunner(t, server.URL, []string{"Hello"}, &out)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("canned question must not reach the relay, got %d requests", atomic.LoadInt32(hits))
	}
	want, _ := datatypes.DefaultCannedTable().Lookup("hello")
	if !strings.Contains(out.String(), "ANSWER: "+want) {
		t.Errorf("missing canned answer: %q", out.String())
	}
}

func TestChatRunner_StopsWhenCancelled(t *testing.T) {
	server, hits := fakeRelay(t, http.StatusOK, "unused")
	var out bytes.Buffer
	runner, _ := newTestRunner(t, server.URL, []string{"What is APR?"}, &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("cancelled runner should not send, got %d requests", atomic.LoadInt32(hits))
	}
}

func TestAskOnce(t *testing.T) {
	ok, _ := fakeRelay(t, http.StatusOK, "Twelve percent.")
	broken, _ := fakeRelay(t, http.StatusInternalServerError, "")

	tests := []struct {
		name    string
		relay   string
		wantErr bool
		wantOut string
	}{
		{"success", ok.URL, false, "ANSWER: Twelve percent.\n"},
		{"relay failure", broken.URL, true, "ERROR: " + datatypes.ClientErrorMessage + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			cfg.RelayURL = tt.relay
			session, err := newSession(cfg, nil)
			if err != nil {
				t.Fatalf("newSession: %v", err)
			}
			var out bytes.Buffer

			err = askOnce(context.Background(), session, ux.NewTurnRenderer(&out, ux.RenderMachine), "What is APR?")
			if (err != nil) != tt.wantErr {
				t.Errorf("askOnce error = %v, wantErr %v", err, tt.wantErr)
			}
			if out.String() != tt.wantOut {
				t.Errorf("got %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}
