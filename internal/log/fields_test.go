package log

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/codeassist/codeassist/internal/message"
)

func TestMessageMarshaler(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	msg := message.Message{
		Role:    message.RoleAssistant,
		Content: "working on it",
		ToolCalls: []message.ToolCall{
			{ID: "t1", Name: "read_file", Input: `{"file_path":"a.txt"}`},
		},
	}
	if err := messageMarshaler(msg).MarshalLogObject(enc); err != nil {
		t.Fatalf("MarshalLogObject: %v", err)
	}
	if enc.Fields["role"] != "assistant" {
		t.Errorf("role = %v", enc.Fields["role"])
	}
	if enc.Fields["content"] != "working on it" {
		t.Errorf("content = %v", enc.Fields["content"])
	}
	calls, ok := enc.Fields["tool_calls"].([]any)
	if !ok || len(calls) != 1 {
		t.Fatalf("tool_calls = %v", enc.Fields["tool_calls"])
	}
	call, ok := calls[0].(map[string]any)
	if !ok || call["name"] != "read_file" {
		t.Errorf("tool call = %v", calls[0])
	}
}

func TestToolResultMarshaler(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	msg := message.Message{
		Role: message.RoleUser,
		ToolResult: &message.ToolResult{
			ToolCallID: "t1",
			Content:    "permission denied",
			IsError:    true,
		},
	}
	if err := messageMarshaler(msg).MarshalLogObject(enc); err != nil {
		t.Fatalf("MarshalLogObject: %v", err)
	}
	result, ok := enc.Fields["tool_result"].(map[string]any)
	if !ok {
		t.Fatalf("tool_result = %v", enc.Fields["tool_result"])
	}
	if result["tool_call_id"] != "t1" || result["is_error"] != true {
		t.Errorf("tool_result fields = %v", result)
	}
}

func TestUsageMarshaler(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	u := usageMarshaler(message.Usage{InputTokens: 100, OutputTokens: 25})
	if err := u.MarshalLogObject(enc); err != nil {
		t.Fatalf("MarshalLogObject: %v", err)
	}
	if enc.Fields["input_tokens"] != 100 || enc.Fields["output_tokens"] != 25 {
		t.Errorf("usage fields = %v", enc.Fields)
	}
}
