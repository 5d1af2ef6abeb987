// Package engine runs the iterative task loop: model round-trips, tool
// execution, persistence, and event emission.
package engine

import (
	"github.com/codeassist/codeassist/internal/message"
)

// EventType names the lifecycle events a run emits.
type EventType string

const (
	EventTaskStarted       EventType = "task_started"
	EventAPIRequestStarted EventType = "api_request_started"
	EventAPIResponse       EventType = "api_response"
	EventToolCallsDetected EventType = "tool_calls_detected"
	EventToolExecStarted   EventType = "tool_execution_started"
	EventToolExecCompleted EventType = "tool_execution_completed"
	EventCompletion        EventType = "completion"
	EventError             EventType = "error"
)

// Event is one entry in a run's event stream.
type Event struct {
	Type         EventType      `json:"type"`
	TaskID       string         `json:"task_id"`
	Ts           float64        `json:"ts"`
	IsNew        *bool          `json:"is_new,omitempty"`
	Iteration    int            `json:"iteration,omitempty"`
	MessageCount int            `json:"message_count,omitempty"`
	Text         string         `json:"text,omitempty"`
	Tool         string         `json:"tool,omitempty"`
	ToolInput    string         `json:"tool_input,omitempty"`
	IsError      bool           `json:"is_error,omitempty"`
	Usage        *message.Usage `json:"usage,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ToolCalls    []string       `json:"tool_calls,omitempty"`
}

// eventBuffer is the event channel capacity. Large enough that a briefly
// slow consumer does not stall the loop.
const eventBuffer = 64
