// Package tool implements the workspace tools exposed to the model and the
// coordinator that validates and executes them.
package tool

import (
	"context"
	"time"

	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/pathguard"
)

// Context carries the per-workspace state handlers need.
type Context struct {
	Guard *pathguard.Guard
}

// Workspace returns the resolved workspace root.
func (tc Context) Workspace() string { return tc.Guard.Root() }

// Meta describes a result for UI rendering.
type Meta struct {
	Title    string        `json:"title,omitempty"`
	Subtitle string        `json:"subtitle,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Result is the outcome of a tool execution.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
	Meta    Meta   `json:"meta,omitempty"`
}

// Handler is the interface all tools implement.
type Handler interface {
	Name() string
	Description() string
	// Parameters returns the JSON-schema map for the tool input.
	Parameters() map[string]any
	// SideEffectFree reports whether the tool only reads state. The
	// coordinator parallelizes batches consisting solely of such tools.
	SideEffectFree() bool
	Execute(ctx context.Context, params map[string]any, tc Context) Result
}

// CompletionToolName is the sentinel tool the model calls to finish a task.
const CompletionToolName = "attempt_completion"

// NewErrorResult creates a failed result for the named tool.
func NewErrorResult(name, msg string) Result {
	return Result{
		Content: msg,
		IsError: true,
		Meta:    Meta{Title: name},
	}
}

// NewResult creates a successful result for the named tool.
func NewResult(name, content string) Result {
	return Result{
		Content: content,
		Meta:    Meta{Title: name},
	}
}

// faultResult renders a classified error as an error result with the fault
// kind visible in the text, so the model sees why the call was rejected.
func faultResult(name string, err error) Result {
	if kind := fault.KindOf(err); kind != "" {
		return NewErrorResult(name, string(kind)+": "+err.Error())
	}
	return NewErrorResult(name, err.Error())
}

// getString extracts a required string parameter.
func getString(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

// getStringDefault extracts an optional string parameter.
func getStringDefault(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// getBoolDefault extracts an optional bool parameter. String forms are
// tolerated since some models send them.
func getBoolDefault(params map[string]any, key string, def bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		if v == "true" {
			return true
		}
		if v == "false" {
			return false
		}
	}
	return def
}

// getIntDefault extracts an optional integer parameter. JSON numbers decode
// as float64.
func getIntDefault(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
