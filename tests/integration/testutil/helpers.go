// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"testing"
	"time"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/contextmgr"
	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/message"
	"github.com/codeassist/codeassist/internal/pathguard"
	"github.com/codeassist/codeassist/internal/provider"
	"github.com/codeassist/codeassist/internal/session"
	"github.com/codeassist/codeassist/internal/tool"
)

// NewEngine creates an engine with the full default tool set, a temp
// workspace and session base, and a fake adapter replaying the queued
// responses. Returns the engine, the fake, and the workspace root.
func NewEngine(t *testing.T, responses ...message.CompletionResponse) (*engine.Engine, *provider.Fake, string) {
	t.Helper()

	workspace := t.TempDir()
	guard, err := pathguard.New(workspace)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}

	base := t.TempDir()
	store := session.NewStore(base)
	index := session.NewIndex(base, store)

	fake := provider.NewFake(responses...)
	eng := engine.New(tool.Default, store, index, guard, contextmgr.New(128000), 0)
	eng.NewAdapter = func(config.AIConfig) (provider.Adapter, error) {
		return fake, nil
	}
	return eng, fake, guard.Root()
}

// AI is a valid model configuration for tests.
func AI() config.AIConfig {
	return config.AIConfig{Provider: "openai", Model: "gpt-4o", APIKey: "test-key"}
}

// ToolCallResponse builds a response carrying a single tool call.
func ToolCallResponse(toolName, toolID, input string) message.CompletionResponse {
	return message.CompletionResponse{
		StopReason: "tool_use",
		ToolCalls:  []message.ToolCall{{ID: toolID, Name: toolName, Input: input}},
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// MultiToolCallResponse builds a response with multiple tool calls.
func MultiToolCallResponse(calls ...message.ToolCall) message.CompletionResponse {
	return message.CompletionResponse{
		StopReason: "tool_use",
		ToolCalls:  calls,
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// EndTurnResponse builds a plain text response with default usage.
func EndTurnResponse(content string) message.CompletionResponse {
	return message.CompletionResponse{
		Content:    content,
		StopReason: "end_turn",
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// CompletionCall builds the finishing attempt_completion response.
func CompletionCall(result string) message.CompletionResponse {
	return ToolCallResponse(tool.CompletionToolName, "tc-done", `{"result":"`+result+`"}`)
}

// Drain collects all events from a run until the channel closes.
func Drain(t *testing.T, ch <-chan engine.Event) []engine.Event {
	t.Helper()
	var events []engine.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("run did not finish; got %d events", len(events))
		}
	}
}

// EventsOf filters events by type.
func EventsOf(events []engine.Event, typ engine.EventType) []engine.Event {
	var out []engine.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
