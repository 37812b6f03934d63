// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the FinHelp relay service.
//
// This package wires the relay together: provider client, completion proxy,
// canned answer table, HTTP routing, metrics and tracing. It owns the server
// lifecycle, including graceful shutdown.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210, LLMBackend: "openai"}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Tests inject a provider through Options:
//
//	svc, err := orchestrator.New(cfg, &orchestrator.Options{LLMClient: mock})
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/finhelp/services/llm"
	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/AleutianAI/finhelp/services/orchestrator/handlers"
	"github.com/AleutianAI/finhelp/services/orchestrator/middleware"
	"github.com/AleutianAI/finhelp/services/orchestrator/observability"
	"github.com/AleutianAI/finhelp/services/orchestrator/routes"
	"github.com/AleutianAI/finhelp/services/orchestrator/services"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// serviceName is reported to the tracing backend and otelgin.
const serviceName = "finhelp-relay"

// OTelStdout selects the stdout span exporter instead of OTLP.
const OTelStdout = "stdout"

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the relay service.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance. Router is safe to
// call at any time.
type Service interface {
	// Run starts the HTTP server and blocks until ctx is cancelled or the
	// server fails. Cancelling ctx triggers a graceful shutdown bounded by
	// Config.ShutdownTimeout. Returns nil after a clean shutdown.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine, for tests and embedding.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds relay configuration. Zero values are replaced by
// applyConfigDefaults.
type Config struct {
	// Port to listen on. Default 12210.
	Port int

	// ListenAddr overrides Port when set, e.g. "127.0.0.1:0".
	ListenAddr string

	// LLMBackend selects the provider: "openai" (default) or "ollama".
	LLMBackend string

	// OpenAI configures the OpenAI-compatible client.
	OpenAI llm.OpenAIConfig

	// Ollama configures the Ollama client.
	Ollama llm.OllamaConfig

	// SystemPreamble replaces datatypes.DefaultSystemPreamble when set.
	SystemPreamble string

	// CannedTablePath points to a YAML canned table replacing the built-in one.
	CannedTablePath string

	// CompletionTimeout bounds one whole provider completion, open through
	// last fragment. Default 2m.
	CompletionTimeout time.Duration

	// Temperature is passed to the provider when set.
	Temperature *float32

	// MaxTokens caps the reply length when positive.
	MaxTokens int

	// OTelEndpoint is an OTLP gRPC collector address, OTelStdout, or empty
	// to leave tracing disabled.
	OTelEndpoint string

	// EnableMetrics registers Prometheus collectors and serves /metrics.
	EnableMetrics bool

	// GinMode is passed to gin.SetMode when set.
	GinMode string

	// ShutdownTimeout bounds graceful shutdown. Default 30s.
	ShutdownTimeout time.Duration
}

// Options carries injected dependencies. Nil fields are built from Config.
type Options struct {
	// LLMClient replaces the client selected by Config.LLMBackend.
	LLMClient llm.LLMClient
}

// =============================================================================
// Struct Definition
// =============================================================================

type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.LLMClient
	canned        *datatypes.CannedTable
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a relay Service.
//
// # Description
//
// Initializes, in order: tracing, metrics, the provider client, the canned
// table, and the router. A failure after tracing started runs cleanup
// before returning.
//
// # Inputs
//
//   - cfg: Configuration. Zero values get defaults.
//   - opts: Injected dependencies. May be nil.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if any component failed to initialize.
func New(cfg Config, opts *Options) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	if opts == nil {
		opts = &Options{}
	}
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for relay")
	}

	if opts.LLMClient != nil {
		s.llmClient = opts.LLMClient
	} else if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initCannedTable(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load canned table: %w", err)
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Methods
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	addr := s.config.ListenAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", s.config.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting relay server", "addr", addr, "model", s.llmClient.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		slog.Info("Shutting down relay server", "timeout", s.config.ShutdownTimeout.String())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Methods
// =============================================================================

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.CompletionTimeout == 0 {
		cfg.CompletionTimeout = services.DefaultCompletionTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return cfg
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	switch s.config.OTelEndpoint {
	case "":
		slog.Info("OTel endpoint not configured, tracing disabled")
		return func(context.Context) {}, nil
	case OTelStdout:
		stdoutExporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		exporter = stdoutExporter
	default:
		conn, err := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		grpcExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = grpcExporter
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	slog.Info("Tracing enabled", "endpoint", s.config.OTelEndpoint)

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown trace provider", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initLLMClient() error {
	switch s.config.LLMBackend {
	case "openai":
		client, err := llm.NewOpenAIClient(s.config.OpenAI)
		if err != nil {
			return err
		}
		s.llmClient = client
		slog.Info("Using OpenAI LLM backend", "model", client.Model())
	case "ollama":
		client, err := llm.NewOllamaClient(s.config.Ollama)
		if err != nil {
			return err
		}
		s.llmClient = client
		slog.Info("Using Ollama LLM backend", "model", client.Model())
	default:
		return fmt.Errorf("unknown LLM backend %q (want openai or ollama)", s.config.LLMBackend)
	}
	return nil
}

func (s *service) initCannedTable() error {
	if s.config.CannedTablePath == "" {
		s.canned = datatypes.DefaultCannedTable()
		return nil
	}
	table, err := datatypes.LoadCannedTable(s.config.CannedTablePath)
	if err != nil {
		return err
	}
	s.canned = table
	slog.Info("Loaded canned table", "path", s.config.CannedTablePath, "entries", table.Len())
	return nil
}

func (s *service) generationParams() llm.GenerationParams {
	params := llm.GenerationParams{Temperature: s.config.Temperature}
	if s.config.MaxTokens > 0 {
		maxTokens := s.config.MaxTokens
		params.MaxTokens = &maxTokens
	}
	return params
}

func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(slog.Default()),
		otelgin.Middleware(serviceName),
	)

	proxy := services.NewCompletionProxy(s.llmClient, services.ProxyConfig{
		SystemPreamble:    s.config.SystemPreamble,
		Params:            s.generationParams(),
		CompletionTimeout: s.config.CompletionTimeout,
	})
	chatHandler := handlers.NewStreamingChatHandler(proxy, s.canned)

	routes.SetupRoutes(s.router, chatHandler, s.canned, s.config.EnableMetrics)
}

func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// Compile-time interface check
var _ Service = (*service)(nil)
