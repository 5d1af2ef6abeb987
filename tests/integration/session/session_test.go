package session_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/server"
	"github.com/codeassist/codeassist/tests/integration/testutil"
)

func newHTTPServer(t *testing.T, eng *engine.Engine) *httptest.Server {
	t.Helper()
	settings := config.Defaults()
	settings.AI = testutil.AI()
	ts := httptest.NewServer(server.New(settings, eng).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// readSSE consumes an event stream, returning the decoded events and
// whether the [DONE] marker arrived.
func readSSE(t *testing.T, resp *http.Response) ([]engine.Event, bool) {
	t.Helper()
	defer resp.Body.Close()

	var events []engine.Event
	var done bool
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			done = true
			continue
		}
		var ev engine.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad event %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("stream read: %v", err)
	}
	return events, done
}

func TestChatOverHTTPThenSessionHistory(t *testing.T) {
	eng, _, _ := testutil.NewEngine(t,
		testutil.ToolCallResponse("write_to_file", "tc1",
			`{"file_path":"notes.md","content":"# notes"}`),
		testutil.CompletionCall("created notes.md"),
	)
	ts := newHTTPServer(t, eng)

	resp, err := http.Post(ts.URL+"/chat/smart-chat-v2", "application/json",
		strings.NewReader(`{"message":"make a notes file"}`))
	if err != nil {
		t.Fatalf("post chat: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events, done := readSSE(t, resp)
	if !done {
		t.Error("stream missing [DONE]")
	}
	completions := testutil.EventsOf(events, engine.EventCompletion)
	if len(completions) != 1 || completions[0].Text != "created notes.md" {
		t.Fatalf("completions = %+v", completions)
	}
	taskID := completions[0].TaskID

	// The run is now visible in the session list with accumulated usage.
	listResp, err := http.Get(ts.URL + "/sessions/list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list struct {
		Tasks []struct {
			ID        string  `json:"id"`
			Task      string  `json:"task"`
			TokensIn  int     `json:"tokens_in"`
			TokensOut int     `json:"tokens_out"`
			TotalCost float64 `json:"total_cost"`
		} `json:"tasks"`
		TotalCount int `json:"total_count"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if list.TotalCount != 1 || len(list.Tasks) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Tasks[0].ID != taskID {
		t.Errorf("listed id = %q, want %q", list.Tasks[0].ID, taskID)
	}
	if list.Tasks[0].Task != "make a notes file" {
		t.Errorf("task text = %q", list.Tasks[0].Task)
	}
	if list.Tasks[0].TokensIn == 0 {
		t.Error("tokens_in not accumulated")
	}

	// A follow-up message on the same task continues the conversation.
	resp, err = http.Post(ts.URL+"/chat/smart-chat-v2", "application/json",
		strings.NewReader(`{"message":"thanks","task_id":"`+taskID+`"}`))
	if err != nil {
		t.Fatalf("post follow-up: %v", err)
	}
	events, _ = readSSE(t, resp)
	if len(testutil.EventsOf(events, engine.EventCompletion)) != 1 {
		t.Fatalf("follow-up events = %+v", events)
	}

	// Loading the session returns the full history.
	loadResp, err := http.Get(ts.URL + "/sessions/load/" + taskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer loadResp.Body.Close()
	var loaded struct {
		TaskID       string            `json:"task_id"`
		Task         string            `json:"task"`
		Messages     []json.RawMessage `json:"messages"`
		UIMessages   []json.RawMessage `json:"ui_messages"`
		MessageCount int               `json:"message_count"`
	}
	if err := json.NewDecoder(loadResp.Body).Decode(&loaded); err != nil {
		t.Fatalf("load body: %v", err)
	}
	if loaded.TaskID != taskID {
		t.Errorf("loaded id = %q", loaded.TaskID)
	}
	if len(loaded.Messages) < 5 || loaded.MessageCount != len(loaded.Messages) {
		t.Errorf("messages = %d entries (count %d), want >= 5", len(loaded.Messages), loaded.MessageCount)
	}
	if loaded.Task != "make a notes file" {
		t.Errorf("task description = %q", loaded.Task)
	}
	if len(loaded.UIMessages) == 0 {
		t.Error("ui messages empty")
	}
}

func TestDeleteRemovesTaskOnDisk(t *testing.T) {
	eng, _, _ := testutil.NewEngine(t, testutil.EndTurnResponse("quick answer"))
	ts := newHTTPServer(t, eng)

	resp, err := http.Post(ts.URL+"/chat/smart-chat-v2", "application/json",
		strings.NewReader(`{"message":"quick question"}`))
	if err != nil {
		t.Fatalf("post chat: %v", err)
	}
	events, _ := readSSE(t, resp)
	completions := testutil.EventsOf(events, engine.EventCompletion)
	if len(completions) != 1 {
		t.Fatalf("events = %+v", events)
	}
	taskID := completions[0].TaskID

	delResp, err := http.Post(ts.URL+"/sessions/delete/"+taskID, "application/json", nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	if eng.Store.Exists(taskID) {
		t.Error("task directory still on disk after delete")
	}

	loadResp, err := http.Get(ts.URL + "/sessions/load/" + taskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loadResp.Body.Close()
	if loadResp.StatusCode != http.StatusNotFound {
		t.Errorf("load after delete = %d, want 404", loadResp.StatusCode)
	}
}
