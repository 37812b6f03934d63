// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"RELAY_PORT", "LLM_BACKEND_TYPE", "FINHELP_COMPLETION_TIMEOUT", "FINHELP_TEMPERATURE",
		"FINHELP_MAX_TOKENS", "OTEL_EXPORTER_OTLP_ENDPOINT", "ENABLE_METRICS", "GIN_MODE",
	} {
		t.Setenv(key, "")
	}

	cfg := configFromEnv()

	assert.Equal(t, 12210, cfg.Port)
	assert.Equal(t, "openai", cfg.LLMBackend)
	assert.Equal(t, 2*time.Minute, cfg.CompletionTimeout)
	assert.Nil(t, cfg.Temperature)
	assert.Zero(t, cfg.MaxTokens)
	assert.Empty(t, cfg.OTelEndpoint)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, gin.ReleaseMode, cfg.GinMode)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("RELAY_PORT", "9000")
	t.Setenv("LLM_BACKEND_TYPE", "ollama")
	t.Setenv("FINHELP_COMPLETION_TIMEOUT", "45s")
	t.Setenv("FINHELP_TEMPERATURE", "0.3")
	t.Setenv("FINHELP_MAX_TOKENS", "512")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "stdout")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("FINHELP_CANNED_TABLE", "/etc/finhelp/canned.yaml")

	cfg := configFromEnv()

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, 45*time.Second, cfg.CompletionTimeout)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, *cfg.Temperature, 1e-6)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.Equal(t, "stdout", cfg.OTelEndpoint)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, "/etc/finhelp/canned.yaml", cfg.CannedTablePath)
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "twelve")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	assert.True(t, getEnvBool("TEST_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnvString("TEST_UNSET_STRING", "fallback"))
}
