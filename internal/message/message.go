// Package message defines the canonical conversation types used across the
// codebase. All packages import from here to avoid circular dependencies.
package message

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single entry in the API conversation history.
// Ts is epoch seconds with fractional precision.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Ts         float64     `json:"ts,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall represents a tool call emitted by the model. Input holds the raw
// JSON argument string exactly as the provider produced it.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// ToolResult represents the outcome of one tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Now returns the current time as epoch seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// UserMessage creates a timestamped user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Ts: Now()}
}

// AssistantMessage creates a timestamped assistant message.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, Ts: Now(), ToolCalls: calls}
}

// ToolResultMessage wraps a tool result as a user-role message, which is how
// providers expect tool results to be returned.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleUser, Ts: Now(), ToolResult: &result}
}

// ErrorResult creates an error ToolResult for a tool call.
func ErrorResult(tc ToolCall, content string) ToolResult {
	return ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    content,
		IsError:    true,
	}
}

// ParseToolInput deserializes JSON tool input into a params map.
// Empty input yields an empty map, not an error.
func ParseToolInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// CompletionResponse represents a full completion collected from a provider.
type CompletionResponse struct {
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"` // "end_turn", "tool_use", "max_tokens"
	Usage      Usage      `json:"usage"`
}

// Usage contains token usage reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Add accumulates another usage report.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ChunkType represents the type of a stream chunk.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeToolStart ChunkType = "tool_start"
	ChunkTypeToolInput ChunkType = "tool_input"
	ChunkTypeDone      ChunkType = "done"
	ChunkTypeError     ChunkType = "error"
)

// StreamChunk represents a chunk in a streaming response.
type StreamChunk struct {
	Type     ChunkType
	Text     string              // for text chunks
	ToolID   string              // for tool_start chunks
	ToolName string              // for tool_start chunks
	Response *CompletionResponse // for done chunks
	Error    error               // for error chunks
}
