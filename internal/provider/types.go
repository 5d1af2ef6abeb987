// Package provider defines the model adapter contract and the factory that
// builds adapters from configuration.
package provider

import (
	"context"

	"github.com/codeassist/codeassist/internal/message"
)

// CompletionOptions contains options for a completion request.
type CompletionOptions struct {
	Model        string
	Messages     []message.Message
	MaxTokens    int
	Temperature  float64
	Tools        []Tool
	SystemPrompt string
}

// Tool represents a tool definition sent to the model.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"` // JSON Schema
}

// Adapter is the interface all model providers implement.
type Adapter interface {
	// Stream sends a completion request and returns a channel of chunks.
	// The channel is closed after a done or error chunk.
	Stream(ctx context.Context, opts CompletionOptions) <-chan message.StreamChunk

	// Name returns the provider name.
	Name() string
}

// Complete collects stream chunks into a complete response, providing
// non-streaming output from any Adapter.
func Complete(ctx context.Context, a Adapter, opts CompletionOptions) (message.CompletionResponse, error) {
	var response message.CompletionResponse

	for chunk := range a.Stream(ctx, opts) {
		switch chunk.Type {
		case message.ChunkTypeText:
			response.Content += chunk.Text
		case message.ChunkTypeToolStart, message.ChunkTypeToolInput:
			// Tool calls are delivered complete in the done chunk.
		case message.ChunkTypeDone:
			if chunk.Response != nil {
				return *chunk.Response, nil
			}
			return response, nil
		case message.ChunkTypeError:
			return response, chunk.Error
		}
	}

	return response, ctx.Err()
}
