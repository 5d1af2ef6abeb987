package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/message"
	"github.com/codeassist/codeassist/internal/pathguard"
	"github.com/codeassist/codeassist/internal/session"
)

// checkRepositoryPath validates the optional repository_path query parameter.
// The server manages sessions for exactly one workspace; naming any other
// repository is a parameter error.
func (s *Server) checkRepositoryPath(r *http.Request) error {
	repo := r.URL.Query().Get("repository_path")
	if repo == "" {
		return nil
	}
	g, err := pathguard.New(repo)
	if err != nil {
		return err
	}
	if g.Root() != s.engine.Guard.Root() {
		return fault.New(fault.InvalidParameters,
			"repository_path %q does not match the configured workspace", repo)
	}
	return nil
}

// sessionListResponse is the body of GET /sessions/list.
type sessionListResponse struct {
	Tasks       []session.HistoryItem `json:"tasks"`
	TotalCount  int                   `json:"total_count"`
	TotalTokens int                   `json:"total_tokens"`
	TotalCost   float64               `json:"total_cost"`
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if err := s.checkRepositoryPath(r); err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	opts := session.ListOptions{
		Search:        q.Get("search_query"),
		Sort:          session.SortOrder(q.Get("sort_by")),
		FavoritesOnly: q.Get("favorites_only") == "true",
		Limit:         limit,
	}

	items, err := s.engine.Index.List(opts)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := sessionListResponse{
		Tasks:      items,
		TotalCount: len(items),
	}
	for _, item := range items {
		resp.TotalTokens += item.TokensIn + item.TokensOut
		resp.TotalCost += item.TotalCost
	}
	if resp.Tasks == nil {
		resp.Tasks = []session.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionLoadResponse is the body of GET /sessions/load/{task_id}.
type sessionLoadResponse struct {
	TaskID       string              `json:"task_id"`
	Task         string              `json:"task"`
	CreatedAt    float64             `json:"created_at"`
	LastUpdated  float64             `json:"last_updated"`
	Provider     string              `json:"provider"`
	Model        string              `json:"model"`
	Messages     []message.Message   `json:"messages"`
	UIMessages   []session.UIMessage `json:"ui_messages"`
	MessageCount int                 `json:"message_count"`
}

func (s *Server) handleSessionLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.checkRepositoryPath(r); err != nil {
		writeError(w, err)
		return
	}
	taskID := r.PathValue("task_id")

	meta, err := s.engine.Store.LoadMetadata(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	api, err := s.engine.Store.LoadAPI(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	ui, err := s.engine.Store.LoadUI(taskID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The description lives in the index; a missing row just leaves it blank.
	task := ""
	if item, err := s.engine.Index.Get(taskID); err == nil {
		task = item.Task
	}

	writeJSON(w, http.StatusOK, sessionLoadResponse{
		TaskID:       taskID,
		Task:         task,
		CreatedAt:    meta.CreatedAt,
		LastUpdated:  meta.LastUpdated,
		Provider:     meta.APIProvider,
		Model:        meta.APIModel,
		Messages:     api,
		UIMessages:   ui,
		MessageCount: len(api),
	})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.checkRepositoryPath(r); err != nil {
		writeError(w, err)
		return
	}
	taskID := r.PathValue("task_id")

	favorited, err := s.engine.Index.ToggleFavorite(taskID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"task_id":      taskID,
		"is_favorited": favorited,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.checkRepositoryPath(r); err != nil {
		writeError(w, err)
		return
	}
	taskID := r.PathValue("task_id")

	// An active run holds the task directory open; stop it first.
	s.engine.Runs.Cancel(taskID)

	if err := s.engine.Index.Delete(taskID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"task_id": taskID,
		"message": fmt.Sprintf("task %s deleted", taskID),
	})
}
