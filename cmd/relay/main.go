// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command relay starts the FinHelp streaming chat relay.
//
// It reads configuration from environment variables, starts the HTTP server
// and shuts down gracefully on SIGINT or SIGTERM.
//
// # Environment Variables
//
//   - RELAY_PORT: HTTP server port (default: 12210)
//   - LLM_BACKEND_TYPE: openai or ollama (default: openai)
//   - OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL: OpenAI settings
//   - OPENAI_API_KEY_FILE: secret file read when OPENAI_API_KEY is unset
//   - OLLAMA_BASE_URL, OLLAMA_MODEL: Ollama settings
//   - FINHELP_SYSTEM_PREAMBLE: replaces the default system preamble
//   - FINHELP_CANNED_TABLE: YAML file replacing the built-in canned answers
//   - FINHELP_COMPLETION_TIMEOUT: limit on one whole reply, e.g. "5m" (default: 2m)
//   - FINHELP_TEMPERATURE: sampling temperature (unset: provider default)
//   - FINHELP_MAX_TOKENS: reply length cap (unset: provider default)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector address or "stdout" (unset: no tracing)
//   - ENABLE_METRICS: serve /metrics (default: true)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_DIR: also write JSON logs to a daily file in this directory
//   - GIN_MODE: debug, release, test (default: release)
//
// # Usage
//
//	go build -o relay ./cmd/relay
//	OPENAI_API_KEY=... ./relay
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AleutianAI/finhelp/pkg/logging"
	"github.com/AleutianAI/finhelp/services/llm"
	"github.com/AleutianAI/finhelp/services/orchestrator"
	"github.com/gin-gonic/gin"
)

func main() {
	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Printf("invalid LOG_LEVEL, using info: %v", err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "finhelp-relay",
		JSON:    true,
		Output:  os.Stdout,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := configFromEnv()

	slog.Info("Starting relay",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"metrics", cfg.EnableMetrics,
		"otel_endpoint", cfg.OTelEndpoint,
	)

	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		slog.Error("Failed to create relay", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("Relay error", "error", err)
		os.Exit(1)
	}
	slog.Info("Relay stopped")
}

// configFromEnv builds the relay configuration from environment variables.
func configFromEnv() orchestrator.Config {
	cfg := orchestrator.Config{
		Port:       getEnvInt("RELAY_PORT", 12210),
		LLMBackend: getEnvString("LLM_BACKEND_TYPE", "openai"),
		OpenAI: llm.OpenAIConfig{
			APIKeyFile: os.Getenv("OPENAI_API_KEY_FILE"),
		},
		SystemPreamble:    os.Getenv("FINHELP_SYSTEM_PREAMBLE"),
		CannedTablePath:   os.Getenv("FINHELP_CANNED_TABLE"),
		CompletionTimeout: getEnvDuration("FINHELP_COMPLETION_TIMEOUT", 2*time.Minute),
		MaxTokens:         getEnvInt("FINHELP_MAX_TOKENS", 0),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EnableMetrics:     getEnvBool("ENABLE_METRICS", true),
		GinMode:           getEnvString("GIN_MODE", gin.ReleaseMode),
	}
	if value := os.Getenv("FINHELP_TEMPERATURE"); value != "" {
		if temp, err := strconv.ParseFloat(value, 32); err == nil {
			t := float32(temp)
			cfg.Temperature = &t
		} else {
			slog.Warn("Ignoring invalid FINHELP_TEMPERATURE", "value", value)
		}
	}
	return cfg
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
