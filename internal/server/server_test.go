package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/contextmgr"
	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/message"
	"github.com/codeassist/codeassist/internal/pathguard"
	"github.com/codeassist/codeassist/internal/provider"
	"github.com/codeassist/codeassist/internal/session"
	"github.com/codeassist/codeassist/internal/tool"
)

func newTestServer(t *testing.T, fake *provider.Fake) *Server {
	t.Helper()

	guard, err := pathguard.New(t.TempDir())
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}

	base := t.TempDir()
	store := session.NewStore(base)
	index := session.NewIndex(base, store)

	eng := engine.New(tool.NewCoordinator(), store, index, guard, contextmgr.New(128000), 0)
	eng.NewAdapter = func(config.AIConfig) (provider.Adapter, error) {
		return fake, nil
	}

	settings := config.Defaults()
	settings.AI = config.AIConfig{Provider: "openai", Model: "gpt-4o", APIKey: "test-key"}
	return New(settings, eng)
}

// runChat posts a chat request and returns the decoded SSE events plus
// whether the stream was terminated by the done marker.
func runChat(t *testing.T, s *Server, body string) ([]engine.Event, bool) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/chat/smart-chat-v2", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var events []engine.Event
	var done bool
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == doneMarker {
			done = true
			continue
		}
		var ev engine.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad event payload %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	return events, done
}

func lastOf(events []engine.Event, typ engine.EventType) (engine.Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i], true
		}
	}
	return engine.Event{}, false
}

func TestChatStreamsEvents(t *testing.T) {
	fake := provider.NewFake(message.CompletionResponse{
		Content:    "the answer",
		StopReason: "end_turn",
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	})
	s := newTestServer(t, fake)

	events, done := runChat(t, s, `{"message":"what is the answer"}`)
	if !done {
		t.Error("stream missing done marker")
	}
	completion, ok := lastOf(events, engine.EventCompletion)
	if !ok {
		t.Fatalf("no completion event in %+v", events)
	}
	if completion.Text != "the answer" {
		t.Errorf("completion text = %q", completion.Text)
	}
	if completion.TaskID == "" {
		t.Error("completion event missing task id")
	}
}

func TestChatInvalidBody(t *testing.T) {
	s := newTestServer(t, provider.NewFake())

	req := httptest.NewRequest(http.MethodPost, "/chat/smart-chat-v2", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatEmptyMessage(t *testing.T) {
	s := newTestServer(t, provider.NewFake())

	req := httptest.NewRequest(http.MethodPost, "/chat/smart-chat-v2", strings.NewReader(`{"message":""}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body: %v", err)
	}
	if body["kind"] != "invalid_parameters" {
		t.Errorf("error kind = %q", body["kind"])
	}
}

func TestChatUnknownTask(t *testing.T) {
	s := newTestServer(t, provider.NewFake())

	req := httptest.NewRequest(http.MethodPost, "/chat/smart-chat-v2",
		strings.NewReader(`{"message":"continue","task_id":"deadbeef"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRepositoryPathScope(t *testing.T) {
	s := newTestServer(t, provider.NewFake())
	workspace := s.engine.Guard.Root()

	// Session endpoints reject a repository_path naming another repo.
	other := t.TempDir()
	req := httptest.NewRequest(http.MethodGet,
		"/sessions/list?repository_path="+url.QueryEscape(other), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("foreign repo status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body: %v", err)
	}
	if body["kind"] != "invalid_parameters" {
		t.Errorf("error kind = %q", body["kind"])
	}

	// Naming the configured workspace is fine.
	req = httptest.NewRequest(http.MethodGet,
		"/sessions/list?repository_path="+url.QueryEscape(workspace), nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("own repo status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Chat requests carry the same check.
	req = httptest.NewRequest(http.MethodPost, "/chat/smart-chat-v2",
		strings.NewReader(`{"message":"hi","repository_path":"`+other+`"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("chat foreign repo status = %d, want 400", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	fake := provider.NewFake(message.CompletionResponse{
		Content:    "done",
		StopReason: "end_turn",
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	})
	s := newTestServer(t, fake)

	events, _ := runChat(t, s, `{"message":"build the thing"}`)
	completion, ok := lastOf(events, engine.EventCompletion)
	if !ok {
		t.Fatal("no completion event")
	}
	taskID := completion.TaskID

	// list
	req := httptest.NewRequest(http.MethodGet, "/sessions/list", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list sessionListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if list.TotalCount != 1 || len(list.Tasks) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Tasks[0].ID != taskID {
		t.Errorf("listed id = %q, want %q", list.Tasks[0].ID, taskID)
	}
	if list.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", list.TotalTokens)
	}

	// load
	req = httptest.NewRequest(http.MethodGet, "/sessions/load/"+taskID, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d, body %s", rec.Code, rec.Body.String())
	}
	var loaded sessionLoadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("load body: %v", err)
	}
	if loaded.TaskID != taskID {
		t.Errorf("loaded id = %q", loaded.TaskID)
	}
	if len(loaded.Messages) != 2 || loaded.MessageCount != 2 {
		t.Errorf("messages = %d (count %d), want 2", len(loaded.Messages), loaded.MessageCount)
	}
	if loaded.Task != "build the thing" {
		t.Errorf("task description = %q", loaded.Task)
	}
	if loaded.Model != "gpt-4o" {
		t.Errorf("model = %q", loaded.Model)
	}
	if len(loaded.UIMessages) == 0 {
		t.Error("ui messages empty")
	}

	// toggle favorite, twice
	for _, want := range []bool{true, false} {
		req = httptest.NewRequest(http.MethodPost, "/sessions/toggle-favorite/"+taskID, nil)
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle status = %d", rec.Code)
		}
		var toggled struct {
			Success     bool   `json:"success"`
			TaskID      string `json:"task_id"`
			IsFavorited bool   `json:"is_favorited"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &toggled); err != nil {
			t.Fatalf("toggle body: %v", err)
		}
		if !toggled.Success {
			t.Error("toggle success = false")
		}
		if toggled.IsFavorited != want {
			t.Errorf("is_favorited = %v, want %v", toggled.IsFavorited, want)
		}
	}

	// delete
	req = httptest.NewRequest(http.MethodPost, "/sessions/delete/"+taskID, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("delete body = %s", rec.Body.String())
	}

	// gone now
	req = httptest.NewRequest(http.MethodGet, "/sessions/load/"+taskID, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("load after delete status = %d, want 404", rec.Code)
	}
}

func TestSessionListEmpty(t *testing.T) {
	s := newTestServer(t, provider.NewFake())

	req := httptest.NewRequest(http.MethodGet, "/sessions/list", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"tasks":[]`) {
		t.Errorf("empty list should serialize tasks as []: %s", rec.Body.String())
	}
}

func TestSessionListQueryParams(t *testing.T) {
	s := newTestServer(t, provider.NewFake())
	s.engine.Index.Upsert(session.HistoryItem{ID: "aaa", Task: "fix the parser", Ts: 100, LastUpdated: 100})
	s.engine.Index.Upsert(session.HistoryItem{ID: "bbb", Task: "write docs", Ts: 200, LastUpdated: 200})
	s.engine.Index.Upsert(session.HistoryItem{ID: "ccc", Task: "parser cleanup", Ts: 300, LastUpdated: 300, IsFavorited: true})

	get := func(url string) sessionListResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", url, rec.Code)
		}
		var list sessionListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
			t.Fatalf("%s body: %v", url, err)
		}
		return list
	}

	if list := get("/sessions/list?search_query=PARSER"); list.TotalCount != 2 {
		t.Errorf("search_query returned %d tasks, want 2", list.TotalCount)
	}
	if list := get("/sessions/list?favorites_only=true"); list.TotalCount != 1 || list.Tasks[0].ID != "ccc" {
		t.Errorf("favorites_only = %+v", list.Tasks)
	}
	if list := get("/sessions/list?limit=1"); len(list.Tasks) != 1 || list.Tasks[0].ID != "ccc" {
		t.Errorf("limit=1 = %+v", list.Tasks)
	}
	if list := get("/sessions/list?sort_by=oldest"); list.Tasks[0].ID != "aaa" {
		t.Errorf("sort_by=oldest first = %q", list.Tasks[0].ID)
	}
}

func TestToggleFavoriteUnknown(t *testing.T) {
	s := newTestServer(t, provider.NewFake())

	req := httptest.NewRequest(http.MethodPost, "/sessions/toggle-favorite/nope", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, provider.NewFake())

	req := httptest.NewRequest(http.MethodOptions, "/sessions/list", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}
