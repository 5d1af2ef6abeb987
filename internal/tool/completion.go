package tool

import (
	"context"
	"time"
)

// AttemptCompletion is the sentinel tool the model calls when the task is
// done. The engine watches for it and ends the loop; executing it just
// echoes the result text.
type AttemptCompletion struct{}

func (t *AttemptCompletion) Name() string { return CompletionToolName }

func (t *AttemptCompletion) Description() string {
	return "Present the final result of the task to the user. Call this only when the task is complete."
}

func (t *AttemptCompletion) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"result": stringProp("The final result description for the user"),
	}, "result")
}

func (t *AttemptCompletion) SideEffectFree() bool { return true }

func (t *AttemptCompletion) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()
	result := getStringDefault(params, "result", "")
	if result == "" {
		return NewErrorResult(t.Name(), "result parameter is required")
	}
	return Result{
		Content: result,
		Meta: Meta{
			Title:    t.Name(),
			Duration: time.Since(start),
		},
	}
}

func init() {
	Register(&AttemptCompletion{})
}
