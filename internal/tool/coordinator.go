package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/log"
	"github.com/codeassist/codeassist/internal/message"
	"github.com/codeassist/codeassist/internal/provider"
)

// execTimeout is the soft per-call deadline applied to every tool execution.
const execTimeout = 30 * time.Second

// parallelWorkers bounds concurrent executions in a read-only batch.
const parallelWorkers = 4

// Coordinator holds the registered tool handlers and executes tool calls
// against them.
type Coordinator struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering the same name twice is an error.
func (c *Coordinator) Register(h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := h.Name()
	if _, exists := c.handlers[name]; exists {
		return fault.New(fault.InvalidParameters, "tool already registered: %s", name)
	}
	c.handlers[name] = h
	return nil
}

// Get returns a handler by name.
func (c *Coordinator) Get(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Names returns all registered tool names, sorted.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns provider tool definitions for every handler, in stable
// name order.
func (c *Coordinator) Specs() []provider.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]provider.Tool, 0, len(names))
	for _, name := range names {
		h := c.handlers[name]
		specs = append(specs, provider.Tool{
			Name:        h.Name(),
			Description: h.Description(),
			Parameters:  h.Parameters(),
		})
	}
	return specs
}

// Execute runs a single tool call and converts the outcome into a
// message.ToolResult. Unknown tools, bad JSON input, and handler panics all
// become error results rather than failing the run.
func (c *Coordinator) Execute(ctx context.Context, call message.ToolCall, tc Context) message.ToolResult {
	h, ok := c.Get(call.Name)
	if !ok {
		return message.ErrorResult(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	params, err := message.ParseToolInput(call.Input)
	if err != nil {
		return message.ErrorResult(call, fmt.Sprintf("invalid tool parameters: %v", err))
	}

	start := time.Now()
	result := c.run(ctx, h, params, tc)
	log.LogTool(call.Name, call.ID, time.Since(start).Milliseconds(), !result.IsError)

	return message.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    result.Content,
		IsError:    result.IsError,
	}
}

// run executes the handler under the soft deadline with panic recovery.
func (c *Coordinator) run(ctx context.Context, h Handler, params map[string]any, tc Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("tool panic",
				zap.String("tool", h.Name()),
				zap.Any("panic", r))
			result = NewErrorResult(h.Name(), fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	execCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()
	return h.Execute(execCtx, params, tc)
}

// ExecuteMany runs a batch of tool calls. When every call names a
// side-effect-free handler the batch runs on a small worker pool; otherwise
// it runs sequentially in call order. Results always come back in call order.
func (c *Coordinator) ExecuteMany(ctx context.Context, calls []message.ToolCall, tc Context) []message.ToolResult {
	results := make([]message.ToolResult, len(calls))

	if !c.allSideEffectFree(calls) {
		for i, call := range calls {
			results[i] = c.Execute(ctx, call, tc)
		}
		return results
	}

	sem := make(chan struct{}, parallelWorkers)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call message.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.Execute(ctx, call, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) allSideEffectFree(calls []message.ToolCall) bool {
	for _, call := range calls {
		h, ok := c.Get(call.Name)
		if !ok || !h.SideEffectFree() {
			return false
		}
	}
	return len(calls) > 0
}

// Default is the process-wide coordinator that handlers register into from
// their init functions.
var Default = NewCoordinator()

// Register adds a handler to the default coordinator, panicking on duplicate
// names since that is a programming error caught at startup.
func Register(h Handler) {
	if err := Default.Register(h); err != nil {
		panic(err)
	}
}
