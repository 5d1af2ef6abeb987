// Package session persists task conversations under .ai/tasks and maintains
// the task index at .ai/history/task_history.json.
package session

// Filenames inside a task directory.
const (
	apiHistoryFile = "api_conversation_history.json"
	uiMessagesFile = "ui_messages.json"
	metadataFile   = "task_metadata.json"
)

// TaskMetadata describes one task on disk.
type TaskMetadata struct {
	TaskID         string  `json:"task_id"`
	CreatedAt      float64 `json:"created_at"`
	LastUpdated    float64 `json:"last_updated"`
	APIProvider    string  `json:"api_provider"`
	APIModel       string  `json:"api_model"`
	RepositoryPath string  `json:"repository_path"`
	TokensIn       int     `json:"tokens_in"`
	TokensOut      int     `json:"tokens_out"`
	TotalCost      float64 `json:"total_cost"`
	MessageCount   int     `json:"message_count"`
}

// HistoryItem is one entry in the task index.
type HistoryItem struct {
	ID             string  `json:"id"`
	Task           string  `json:"task"`
	Ts             float64 `json:"ts"`
	LastUpdated    float64 `json:"last_updated"`
	TokensIn       int     `json:"tokens_in"`
	TokensOut      int     `json:"tokens_out"`
	TotalCost      float64 `json:"total_cost"`
	Size           int64   `json:"size"`
	IsFavorited    bool    `json:"is_favorited"`
	APIProvider    string  `json:"api_provider"`
	APIModel       string  `json:"api_model"`
	RepositoryPath string  `json:"repository_path"`
}

// UIMessage is one entry in ui_messages.json: the rendering stream consumed
// by frontends, kept in lockstep with the API history.
type UIMessage struct {
	Ts   float64 `json:"ts"`
	Type string  `json:"type"` // "say" or "ask"
	Say  string  `json:"say,omitempty"`
	Ask  string  `json:"ask,omitempty"`
	Text string  `json:"text,omitempty"`
}

// Say subtypes.
const (
	SayTask             = "task"
	SayText             = "text"
	SayTool             = "tool"
	SayAPIReqStarted    = "api_req_started"
	SayCompletionResult = "completion_result"
	SayError            = "error"
)

// SortOrder selects index ordering.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortCost   SortOrder = "cost"
)

// DefaultListLimit caps index listings when no limit is given.
const DefaultListLimit = 100

// ListOptions filters and orders index listings. A zero Limit means
// DefaultListLimit.
type ListOptions struct {
	Search        string
	Sort          SortOrder
	FavoritesOnly bool
	Limit         int
}

// Stats aggregates the whole index.
type Stats struct {
	TotalTasks  int     `json:"total_tasks"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	TotalSize   int64   `json:"total_size"`
}
