package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/contextmgr"
	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/log"
	"github.com/codeassist/codeassist/internal/message"
	"github.com/codeassist/codeassist/internal/pathguard"
	"github.com/codeassist/codeassist/internal/provider"
	"github.com/codeassist/codeassist/internal/session"
	"github.com/codeassist/codeassist/internal/tool"
)

// DefaultMaxIterations bounds the loop when no limit is configured.
const DefaultMaxIterations = 999

// defaultMaxTokens is the per-request completion budget when the config
// does not set one.
const defaultMaxTokens = 8192

// Engine owns the task loop dependencies.
type Engine struct {
	Coordinator *tool.Coordinator
	Store       *session.Store
	Index       *session.Index
	Guard       *pathguard.Guard
	Context     *contextmgr.Manager
	Runs        *Runs

	// MaxIterations bounds loop turns; 0 means unbounded.
	MaxIterations int

	// NewAdapter builds the model adapter for a run. Defaults to
	// provider.New; tests substitute a fake.
	NewAdapter func(cfg config.AIConfig) (provider.Adapter, error)
}

// New creates an Engine with the given dependencies and defaults.
func New(coord *tool.Coordinator, store *session.Store, index *session.Index, guard *pathguard.Guard, ctxmgr *contextmgr.Manager, maxIterations int) *Engine {
	if maxIterations < 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Engine{
		Coordinator:   coord,
		Store:         store,
		Index:         index,
		Guard:         guard,
		Context:       ctxmgr,
		Runs:          NewRuns(),
		MaxIterations: maxIterations,
		NewAdapter:    provider.New,
	}
}

// RunRequest starts or continues a task.
type RunRequest struct {
	// TaskID continues an existing task when set; empty starts a new one.
	TaskID string
	// Message is the user input for this run.
	Message string
	// Workspace overrides the engine's default workspace root when set.
	Workspace string
	// AI selects the provider and model.
	AI config.AIConfig
}

// Run validates the request, persists the user message, and starts the loop
// in a goroutine. The returned channel is closed when the run ends. Errors
// returned here mean the run never started; errors during the loop arrive
// as error events.
func (e *Engine) Run(ctx context.Context, req RunRequest) (<-chan Event, string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, "", fault.New(fault.InvalidParameters, "message must not be empty")
	}

	adapter, err := e.NewAdapter(req.AI)
	if err != nil {
		return nil, "", err
	}

	guard := e.Guard
	if req.Workspace != "" {
		guard, err = pathguard.New(req.Workspace)
		if err != nil {
			return nil, "", err
		}
		// Conversations and the index live under the configured workspace's
		// .ai directory, so a run cannot target a different repository.
		if guard.Root() != e.Guard.Root() {
			return nil, "", fault.New(fault.InvalidParameters,
				"repository_path %q does not match the configured workspace", req.Workspace)
		}
	}

	taskID := req.TaskID
	isNew := taskID == ""
	if isNew {
		taskID = uuid.NewString()[:8]
	} else if !e.Store.Exists(taskID) {
		return nil, "", fault.New(fault.NotFound, "task not found: %s", taskID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := e.Runs.Acquire(taskID, cancel); err != nil {
		cancel()
		return nil, "", err
	}

	if isNew {
		now := message.Now()
		meta := session.TaskMetadata{
			TaskID:         taskID,
			CreatedAt:      now,
			LastUpdated:    now,
			APIProvider:    req.AI.Provider,
			APIModel:       req.AI.Model,
			RepositoryPath: guard.Root(),
		}
		if err := e.Store.Create(taskID, meta); err != nil {
			e.Runs.Release(taskID)
			cancel()
			return nil, "", err
		}
		e.Store.AppendUI(taskID, session.UIMessage{
			Ts: now, Type: "say", Say: session.SayTask, Text: req.Message,
		})
	} else {
		e.Store.AppendUI(taskID, session.UIMessage{
			Ts: message.Now(), Type: "say", Say: session.SayText, Text: req.Message,
		})
	}

	if err := e.Store.AppendAPI(taskID, message.UserMessage(req.Message)); err != nil {
		e.Runs.Release(taskID)
		cancel()
		return nil, "", err
	}

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		defer cancel()
		defer e.Runs.Release(taskID)
		e.loop(runCtx, taskID, isNew, adapter, guard, req, events)
	}()

	return events, taskID, nil
}

// loop is the iterative turn loop for one run.
func (e *Engine) loop(ctx context.Context, taskID string, isNew bool, adapter provider.Adapter, guard *pathguard.Guard, req RunRequest, events chan<- Event) {
	var usage message.Usage
	defer e.finalize(taskID, req, &usage)

	emit := func(ev Event) {
		ev.TaskID = taskID
		ev.Ts = message.Now()
		log.LogEvent(taskID, string(ev.Type))
		// Prefer delivery: after cancellation the buffered send should still
		// win while there is room. A full buffer after cancellation means the
		// consumer is gone, and the event, terminal ones included, is dropped
		// rather than blocking this goroutine forever.
		select {
		case events <- ev:
		default:
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
	}

	emit(Event{Type: EventTaskStarted, Text: session.Describe(req.Message), IsNew: &isNew})

	msgs, err := e.Store.LoadAPI(taskID)
	if err != nil {
		e.emitFault(taskID, emit, err)
		return
	}

	maxTokens := req.AI.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	systemPrompt := buildSystemPrompt(guard.Root(), e.Coordinator.Names())
	tc := tool.Context{Guard: guard}

	for iteration := 1; e.MaxIterations == 0 || iteration <= e.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			e.emitFault(taskID, emit, fault.Wrap(fault.Cancelled, ctx.Err(), "run cancelled"))
			return
		}

		if e.Context.OverSoft(msgs) {
			msgs = e.Context.Apply(msgs)
			if log.IsEnabled() {
				log.Logger().Debug("history compacted", log.MessagesField(msgs))
			}
			if err := e.Store.ReplaceAPI(taskID, msgs); err != nil {
				log.Logger().Warn("persisting compacted history failed", zap.Error(err))
			}
		}

		emit(Event{Type: EventAPIRequestStarted, Iteration: iteration, MessageCount: len(msgs)})
		e.Store.AppendUI(taskID, session.UIMessage{
			Ts: message.Now(), Type: "say", Say: session.SayAPIReqStarted,
		})

		resp, err := provider.Complete(ctx, adapter, provider.CompletionOptions{
			Model:        req.AI.Model,
			Messages:     msgs,
			MaxTokens:    maxTokens,
			Temperature:  req.AI.Temperature,
			Tools:        e.Coordinator.Specs(),
			SystemPrompt: systemPrompt,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				e.emitFault(taskID, emit, fault.Wrap(fault.Cancelled, err, "run cancelled"))
			} else {
				// The raw provider error goes to the log, not the client.
				log.LogError(adapter.Name(), err)
				e.emitFault(taskID, emit, fault.New(fault.ModelFailure, "model request failed"))
			}
			return
		}
		usage.Add(resp.Usage)
		if log.IsEnabled() {
			log.Logger().Debug("model turn",
				zap.Int("iteration", iteration),
				log.ToolCallsField(resp.ToolCalls),
				log.UsageField(resp.Usage))
		}

		emit(Event{
			Type:      EventAPIResponse,
			Iteration: iteration,
			Text:      resp.Content,
			Usage:     &resp.Usage,
		})

		assistant := message.AssistantMessage(resp.Content, resp.ToolCalls)
		if err := e.Store.AppendAPI(taskID, assistant); err != nil {
			e.emitFault(taskID, emit, err)
			return
		}
		if resp.Content != "" {
			e.Store.AppendUI(taskID, session.UIMessage{
				Ts: message.Now(), Type: "say", Say: session.SayText, Text: resp.Content,
			})
		}
		msgs = append(msgs, assistant)

		if len(resp.ToolCalls) == 0 {
			// No tool calls and no completion sentinel: the text is the
			// final answer.
			e.Store.AppendUI(taskID, session.UIMessage{
				Ts: message.Now(), Type: "say", Say: session.SayCompletionResult, Text: resp.Content,
			})
			emit(Event{Type: EventCompletion, Text: resp.Content})
			return
		}

		names := make([]string, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			names[i] = call.Name
		}
		emit(Event{Type: EventToolCallsDetected, Iteration: iteration, ToolCalls: names})

		for _, call := range resp.ToolCalls {
			emit(Event{Type: EventToolExecStarted, Tool: call.Name, ToolInput: call.Input})
		}
		results := e.Coordinator.ExecuteMany(ctx, resp.ToolCalls, tc)
		for _, result := range results {
			emit(Event{
				Type:    EventToolExecCompleted,
				Tool:    result.ToolName,
				Text:    result.Content,
				IsError: result.IsError,
			})
			resultMsg := message.ToolResultMessage(result)
			if err := e.Store.AppendAPI(taskID, resultMsg); err != nil {
				e.emitFault(taskID, emit, err)
				return
			}
			if result.ToolName != tool.CompletionToolName {
				e.Store.AppendUI(taskID, session.UIMessage{
					Ts: message.Now(), Type: "say", Say: session.SayTool, Text: renderToolSay(result),
				})
			}
			msgs = append(msgs, resultMsg)
		}

		// The completion sentinel ends the run, but only after every call in
		// the batch has executed and its result is persisted.
		if text, ok := completionText(results); ok {
			e.Store.AppendUI(taskID, session.UIMessage{
				Ts: message.Now(), Type: "say", Say: session.SayCompletionResult, Text: text,
			})
			emit(Event{Type: EventCompletion, Text: text})
			return
		}
	}

	e.emitFault(taskID, emit, fault.New(fault.BudgetExhausted,
		"iteration budget of %d exhausted", e.MaxIterations))
}

// completionText returns the completion sentinel's result from a batch. A
// sentinel call that errored (missing result text) does not end the run; its
// error result goes back to the model like any other.
func completionText(results []message.ToolResult) (string, bool) {
	for _, r := range results {
		if r.ToolName == tool.CompletionToolName && !r.IsError {
			return r.Content, true
		}
	}
	return "", false
}

// emitFault records an error in the ui stream and emits it with its fault
// kind.
func (e *Engine) emitFault(taskID string, emit func(Event), err error) {
	kind := fault.KindOf(err)
	if kind == "" {
		kind = fault.IOError
	}
	e.Store.AppendUI(taskID, session.UIMessage{
		Ts: message.Now(), Type: "say", Say: session.SayError, Text: err.Error(),
	})
	emit(Event{
		Type:      EventError,
		Text:      err.Error(),
		ErrorKind: string(kind),
		IsError:   true,
	})
}

// finalize updates metadata and the index entry from the run outcome. Runs
// whether the loop completed, failed, or was cancelled, so partial state is
// always indexed.
func (e *Engine) finalize(taskID string, req RunRequest, usage *message.Usage) {
	meta, err := e.Store.LoadMetadata(taskID)
	if err != nil {
		log.Logger().Warn("finalize: metadata load failed", zap.Error(err))
		return
	}

	msgs, _ := e.Store.LoadAPI(taskID)
	size := e.Store.Size(taskID)

	tokensIn, tokensOut := usage.InputTokens, usage.OutputTokens
	if tokensIn+tokensOut == 0 {
		// No adapter-reported usage: estimate from stored size, split
		// half in, half out.
		est := int(size / 4)
		tokensIn, tokensOut = est/2, est/2
	}

	meta.LastUpdated = message.Now()
	meta.TokensIn += tokensIn
	meta.TokensOut += tokensOut
	meta.TotalCost += costOf(meta.APIModel, tokensIn, tokensOut)
	meta.MessageCount = len(msgs)
	if err := e.Store.SaveMetadata(taskID, meta); err != nil {
		log.Logger().Warn("finalize: metadata save failed", zap.Error(err))
	}

	item := session.HistoryItem{
		ID:             taskID,
		Task:           session.Describe(req.Message),
		Ts:             meta.CreatedAt,
		LastUpdated:    meta.LastUpdated,
		TokensIn:       meta.TokensIn,
		TokensOut:      meta.TokensOut,
		TotalCost:      meta.TotalCost,
		Size:           size,
		APIProvider:    meta.APIProvider,
		APIModel:       meta.APIModel,
		RepositoryPath: meta.RepositoryPath,
	}
	// Keep the original task description and favorite flag across runs.
	if existing, err := e.Index.Get(taskID); err == nil {
		item.Task = existing.Task
		item.IsFavorited = existing.IsFavorited
	}
	if err := e.Index.Upsert(item); err != nil {
		log.Logger().Warn("finalize: index upsert failed", zap.Error(err))
	}
}

// renderToolSay formats a tool result for the ui message stream, capped so
// a huge file read does not bloat ui_messages.json.
func renderToolSay(result message.ToolResult) string {
	const maxToolSayLen = 10000
	prefix := result.ToolName
	if result.IsError {
		prefix += " (error)"
	}
	content := result.Content
	if len(content) > maxToolSayLen {
		content = content[:maxToolSayLen] + "\n... (output truncated)"
	}
	return prefix + ":\n" + content
}
