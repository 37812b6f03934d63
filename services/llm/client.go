// Package llm contains the completion provider clients used by the relay.
package llm

import (
	"context"

	"github.com/AleutianAI/finhelp/services/orchestrator/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// CompletionStream is an open, provider-side reply stream.
//
// Recv returns the next text increment, which may be empty. It returns
// io.EOF once the provider signals completion. Close releases the upstream
// connection and is safe to call more than once.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// LLMClient defines the standard interface for any streaming completion backend.
type LLMClient interface {
	// OpenChatStream starts one streaming completion for messages. An error
	// means no stream was opened and nothing needs closing.
	OpenChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams) (CompletionStream, error)

	// Model returns the model identifier requests are sent with.
	Model() string
}
