// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/finhelp/services/llm"
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/AleutianAI/finhelp/services/orchestrator/handlers"
	"github.com/AleutianAI/finhelp/services/orchestrator/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockLLMClient is a minimal mock for llm.LLMClient
type mockLLMClient struct{}

func (m *mockLLMClient) Model() string { return "mock" }

func (m *mockLLMClient) OpenChatStream(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams) (llm.CompletionStream, error) {
	return &mockStream{tokens: []string{"mock stream"}}, nil
}

type mockStream struct {
	tokens []string
}

func (s *mockStream) Recv() (string, error) {
	if len(s.tokens) == 0 {
		return "", io.EOF
	}
	token := s.tokens[0]
	s.tokens = s.tokens[1:]
	return token, nil
}

func (s *mockStream) Close() error { return nil }

func newTestChatHandler() handlers.StreamingChatHandler {
	proxy := services.NewCompletionProxy(&mockLLMClient{}, services.ProxyConfig{})
	return handlers.NewStreamingChatHandler(proxy, datatypes.DefaultCannedTable())
}

func hasRoute(router *gin.Engine, method, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersRelayRoutes(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatHandler(), datatypes.DefaultCannedTable(), true)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/api/chat"},
		{"POST", "/v1/chat/stream"},
		{"GET", "/v1/canned"},
	}
	for _, e := range expected {
		assert.True(t, hasRoute(router, e.method, e.path), "route %s %s should be registered", e.method, e.path)
	}
}

func TestSetupRoutes_MetricsDisabled(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatHandler(), datatypes.DefaultCannedTable(), false)

	assert.False(t, hasRoute(router, "GET", "/metrics"))
	assert.True(t, hasRoute(router, "GET", "/health"))
}

func TestSetupRoutes_BothChatPathsRelay(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatHandler(), datatypes.DefaultCannedTable(), false)

	for _, path := range []string{"/api/chat", "/v1/chat/stream"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path,
			strings.NewReader(`[{"role":"user","content":"Explain compound interest"}]`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "mock stream", w.Body.String(), path)
	}
}

func TestSetupRoutes_MetricsEndpointServes(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatHandler(), nil, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
