package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openAITracer = otel.Tracer("finhelp.llm.openai")

const (
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultOpenAISecretPath = "/run/secrets/openai_api_key"
)

// OpenAIConfig configures NewOpenAIClient. Empty fields fall back to the
// OPENAI_API_KEY, OPENAI_MODEL and OPENAI_BASE_URL environment variables.
type OpenAIConfig struct {
	APIKey     string
	APIKeyFile string
	Model      string
	BaseURL    string
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		secretPath := cfg.APIKeyFile
		if secretPath == "" {
			secretPath = defaultOpenAISecretPath
		}
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the OpenAI API key from secret file", "path", secretPath)
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, defaulting to " + defaultOpenAIModel)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	slog.Info("Initializing OpenAI client", "model", model, "base_url", clientCfg.BaseURL)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Model implements the LLMClient interface
func (o *OpenAIClient) Model() string {
	return o.model
}

// OpenChatStream implements the LLMClient interface
func (o *OpenAIClient) OpenChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (CompletionStream, error) {

	ctx, span := openAITracer.Start(ctx, "OpenAIClient.OpenChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open stream failed")
		slog.Error("OpenAI stream could not be opened", "model", o.model, "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	slog.Debug("Opened OpenAI completion stream", "model", o.model)
	return &openAIStream{stream: stream}, nil
}

func toOpenAIMessages(messages []datatypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// openAIStream adapts *openai.ChatCompletionStream to CompletionStream.
type openAIStream struct {
	stream    *openai.ChatCompletionStream
	closeOnce sync.Once
}

func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() error {
	s.closeOnce.Do(func() {
		s.stream.Close()
	})
	return nil
}

var (
	_ LLMClient        = (*OpenAIClient)(nil)
	_ CompletionStream = (*openAIStream)(nil)
)
