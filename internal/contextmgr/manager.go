package contextmgr

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/codeassist/codeassist/internal/log"
	"github.com/codeassist/codeassist/internal/message"
)

const (
	// softThreshold triggers duplicate-read collapse and result truncation.
	softThreshold = 0.80
	// hardThreshold additionally triggers middle-drop.
	hardThreshold = 0.95

	// duplicateReadPlaceholder replaces stale copies of a re-read file.
	duplicateReadPlaceholder = "[Previous file content shown above]"

	// truncateKeep is how many characters survive at each end of an
	// oversized tool result.
	truncateKeep = 200
	truncateJoin = "…(truncated)…"

	// recentResultsKept is how many trailing tool results are exempt from
	// truncation. The model is usually still acting on them.
	recentResultsKept = 5

	// keepLast is how many trailing messages middle-drop preserves.
	keepLast = 10

	// DefaultWindow is used when the model context window is unknown.
	DefaultWindow = 128000
)

// Manager applies the compaction pipeline against a context window.
type Manager struct {
	Window int
}

// New creates a Manager for the given context window; zero means
// DefaultWindow.
func New(window int) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Manager{Window: window}
}

// OverSoft reports whether msgs exceed the soft threshold.
func (m *Manager) OverSoft(msgs []message.Message) bool {
	return float64(EstimateMessages(msgs)) >= float64(m.Window)*softThreshold
}

// OverHard reports whether msgs exceed the hard threshold.
func (m *Manager) OverHard(msgs []message.Message) bool {
	return float64(EstimateMessages(msgs)) >= float64(m.Window)*hardThreshold
}

// Apply runs the compaction pipeline and returns a new slice; the input is
// never mutated. Below the soft threshold the input is returned unchanged.
//
// Stages, in order:
//  1. Collapse duplicate file reads: only the latest read of each path
//     keeps its content.
//  2. Truncate oversized tool results to their first and last 200 chars.
//  3. Over the hard threshold only: drop the middle of the conversation,
//     keeping the first user message and the last 10 messages.
func (m *Manager) Apply(msgs []message.Message) []message.Message {
	if !m.OverSoft(msgs) {
		return msgs
	}

	before := EstimateMessages(msgs)
	out := CollapseDuplicateReads(msgs)
	out = TruncateToolResults(out)

	if m.OverHard(out) {
		out = MiddleDrop(out)
	}

	log.Logger().Info("context compacted",
		zap.Int("tokens_before", before),
		zap.Int("tokens_after", EstimateMessages(out)),
		zap.Int("messages_before", len(msgs)),
		zap.Int("messages_after", len(out)))
	return out
}

// CollapseDuplicateReads replaces the content of all but the newest
// read_file result per path with a short placeholder. The model still sees
// that the file was read, without paying for the content twice.
func CollapseDuplicateReads(msgs []message.Message) []message.Message {
	// Map read_file tool-call IDs to the path argument.
	callPath := make(map[string]string)
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			if tc.Name != "read_file" {
				continue
			}
			params, err := message.ParseToolInput(tc.Input)
			if err != nil {
				continue
			}
			if path, ok := params["file_path"].(string); ok && path != "" {
				callPath[tc.ID] = path
			}
		}
	}

	// Find the index of the latest successful read per path.
	latest := make(map[string]int)
	for i, msg := range msgs {
		if msg.ToolResult == nil || msg.ToolResult.IsError {
			continue
		}
		if path, ok := callPath[msg.ToolResult.ToolCallID]; ok {
			latest[path] = i
		}
	}

	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	for i, msg := range out {
		if msg.ToolResult == nil || msg.ToolResult.IsError {
			continue
		}
		path, ok := callPath[msg.ToolResult.ToolCallID]
		if !ok || latest[path] == i {
			continue
		}
		result := *msg.ToolResult
		result.Content = duplicateReadPlaceholder
		out[i].ToolResult = &result
	}
	return out
}

// TruncateToolResults shortens tool results longer than the keep window to
// their first and last 200 characters. The most recent recentResultsKept
// results are left intact. Runs on rune boundaries so multibyte content is
// never split.
func TruncateToolResults(msgs []message.Message) []message.Message {
	// Boundary below which results are old enough to truncate.
	cutoff := len(msgs)
	seen := 0
	for i := len(msgs) - 1; i >= 0 && seen < recentResultsKept; i-- {
		if msgs[i].ToolResult != nil {
			cutoff = i
			seen++
		}
	}

	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	for i, msg := range out {
		if msg.ToolResult == nil || i >= cutoff {
			continue
		}
		runes := []rune(msg.ToolResult.Content)
		if len(runes) <= 2*truncateKeep {
			continue
		}
		result := *msg.ToolResult
		result.Content = string(runes[:truncateKeep]) + truncateJoin + string(runes[len(runes)-truncateKeep:])
		out[i].ToolResult = &result
	}
	return out
}

// MiddleDrop keeps the first user message and the last keepLast messages,
// replacing everything between with a single marker noting how many
// messages were removed. The tail boundary never separates an assistant
// tool-call message from its results: if the first kept message is a tool
// result, the boundary moves earlier until its assistant message is
// included.
func MiddleDrop(msgs []message.Message) []message.Message {
	firstUser := -1
	for i, msg := range msgs {
		if msg.Role == message.RoleUser && msg.ToolResult == nil {
			firstUser = i
			break
		}
	}

	tailStart := len(msgs) - keepLast
	if tailStart <= firstUser+1 {
		return msgs
	}
	for tailStart > firstUser+1 && msgs[tailStart].ToolResult != nil {
		tailStart--
	}

	dropped := tailStart - (firstUser + 1)
	if dropped <= 0 {
		return msgs
	}

	out := make([]message.Message, 0, 2+len(msgs)-tailStart)
	if firstUser >= 0 {
		out = append(out, msgs[firstUser])
	}
	out = append(out, message.Message{
		Role:    message.RoleUser,
		Content: fmt.Sprintf("[%d earlier messages removed to fit the context window]", dropped),
	})
	out = append(out, msgs[tailStart:]...)
	return out
}
