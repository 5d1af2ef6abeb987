package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/log"
)

// chatRequest is the body of POST /chat/smart-chat-v2.
type chatRequest struct {
	Message        string          `json:"message"`
	TaskID         string          `json:"task_id,omitempty"`
	RepositoryPath string          `json:"repository_path,omitempty"`
	AIConfig       config.AIConfig `json:"ai_config,omitempty"`
}

// doneMarker terminates the event stream.
const doneMarker = "[DONE]"

// handleChat starts or continues a task and streams engine events back as
// server-sent events. Closing the connection cancels the run.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	events, taskID, err := s.engine.Run(r.Context(), engine.RunRequest{
		TaskID:    req.TaskID,
		Message:   req.Message,
		Workspace: req.RepositoryPath,
		AI:        s.settings.Merge(req.AIConfig),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			log.Logger().Error("event marshal failed",
				zap.String("task_id", taskID), zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	}

	fmt.Fprintf(w, "data: %s\n\n", doneMarker)
	flusher.Flush()
}
