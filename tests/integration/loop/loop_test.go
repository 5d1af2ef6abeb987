package loop_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/message"
	"github.com/codeassist/codeassist/internal/tool"
	"github.com/codeassist/codeassist/tests/integration/testutil"
)

func TestLoop_WriteThenReadThenComplete(t *testing.T) {
	eng, fake, workspace := testutil.NewEngine(t,
		testutil.ToolCallResponse("write_to_file", "tc1",
			`{"file_path":"hello.txt","content":"hello from the model"}`),
		testutil.ToolCallResponse("read_file", "tc2", `{"file_path":"hello.txt"}`),
		testutil.CompletionCall("wrote and verified hello.txt"),
	)

	ch, taskID, err := eng.Run(context.Background(), engine.RunRequest{
		Message: "create hello.txt", AI: testutil.AI(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := testutil.Drain(t, ch)

	if got := fake.CallCount(); got != 3 {
		t.Errorf("model calls = %d, want 3", got)
	}

	// The file really exists in the workspace.
	raw, err := os.ReadFile(filepath.Join(workspace, "hello.txt"))
	if err != nil {
		t.Fatalf("workspace file: %v", err)
	}
	if string(raw) != "hello from the model" {
		t.Errorf("file content = %q", raw)
	}

	// The read round-trip fed the content back to the model.
	if len(fake.Calls) != 3 {
		t.Fatalf("recorded calls = %d", len(fake.Calls))
	}
	third := fake.Calls[2].Messages
	last := third[len(third)-1]
	if last.ToolResult == nil || !strings.Contains(last.ToolResult.Content, "hello from the model") {
		t.Errorf("read result not in final request: %+v", last)
	}

	completions := testutil.EventsOf(events, engine.EventCompletion)
	if len(completions) != 1 || completions[0].Text != "wrote and verified hello.txt" {
		t.Fatalf("completions = %+v", completions)
	}

	// user, then an assistant/result pair per iteration.
	msgs, err := eng.Store.LoadAPI(taskID)
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	if len(msgs) != 7 {
		t.Errorf("api history = %d messages, want 7", len(msgs))
	}
}

func TestLoop_ParallelReadOnlyBatch(t *testing.T) {
	eng, _, workspace := testutil.NewEngine(t,
		testutil.MultiToolCallResponse(
			message.ToolCall{ID: "tc1", Name: "read_file", Input: `{"file_path":"a.txt"}`},
			message.ToolCall{ID: "tc2", Name: "read_file", Input: `{"file_path":"b.txt"}`},
		),
		testutil.CompletionCall("read both"),
	)
	if err := os.WriteFile(filepath.Join(workspace, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "b.txt"), []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch, _, err := eng.Run(context.Background(), engine.RunRequest{
		Message: "read both files", AI: testutil.AI(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := testutil.Drain(t, ch)

	var reads []engine.Event
	for _, ev := range testutil.EventsOf(events, engine.EventToolExecCompleted) {
		if ev.Tool == "read_file" {
			reads = append(reads, ev)
		}
	}
	if len(reads) != 2 {
		t.Fatalf("read completions = %d, want 2", len(reads))
	}
	// Results come back in call order regardless of parallel execution.
	if !strings.Contains(reads[0].Text, "alpha") || !strings.Contains(reads[1].Text, "beta") {
		t.Errorf("results out of order: %q, %q", reads[0].Text, reads[1].Text)
	}
}

func TestLoop_CompletionBatchRunsSiblingCalls(t *testing.T) {
	eng, _, workspace := testutil.NewEngine(t,
		testutil.MultiToolCallResponse(
			message.ToolCall{ID: "t1", Name: "read_file", Input: `{"file_path":"notes.txt"}`},
			message.ToolCall{ID: "t2", Name: tool.CompletionToolName, Input: `{"result":"read the notes"}`},
		),
	)
	if err := os.WriteFile(filepath.Join(workspace, "notes.txt"), []byte("remember the milk"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch, taskID, err := eng.Run(context.Background(), engine.RunRequest{
		Message: "read my notes and finish", AI: testutil.AI(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := testutil.Drain(t, ch)

	execs := testutil.EventsOf(events, engine.EventToolExecCompleted)
	if len(execs) != 2 {
		t.Fatalf("tool completions = %d, want 2: %+v", len(execs), execs)
	}
	if execs[0].Tool != "read_file" || !strings.Contains(execs[0].Text, "remember the milk") {
		t.Errorf("read did not run before the finish: %+v", execs[0])
	}

	completions := testutil.EventsOf(events, engine.EventCompletion)
	if len(completions) != 1 || completions[0].Text != "read the notes" {
		t.Fatalf("completions = %+v", completions)
	}

	// Every tool call in the history has a matching persisted result.
	msgs, err := eng.Store.LoadAPI(taskID)
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	answered := map[string]bool{}
	var calls []message.ToolCall
	for _, m := range msgs {
		calls = append(calls, m.ToolCalls...)
		if m.ToolResult != nil {
			answered[m.ToolResult.ToolCallID] = true
		}
	}
	if len(calls) != 2 {
		t.Fatalf("stored tool calls = %d, want 2", len(calls))
	}
	for _, c := range calls {
		if !answered[c.ID] {
			t.Errorf("tool call %s (%s) has no stored result", c.ID, c.Name)
		}
	}
}

func TestLoop_EscapeAttemptBecomesToolError(t *testing.T) {
	eng, _, workspace := testutil.NewEngine(t,
		testutil.ToolCallResponse("read_file", "tc1", `{"file_path":"../../etc/passwd"}`),
		testutil.EndTurnResponse("could not read that"),
	)

	ch, _, err := eng.Run(context.Background(), engine.RunRequest{
		Message: "read outside", AI: testutil.AI(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := testutil.Drain(t, ch)

	execs := testutil.EventsOf(events, engine.EventToolExecCompleted)
	if len(execs) != 1 || !execs[0].IsError {
		t.Fatalf("want a single error tool result, got %+v", execs)
	}
	if !strings.Contains(execs[0].Text, "invalid_path") {
		t.Errorf("result does not name the violation class: %q", execs[0].Text)
	}

	// Nothing appeared outside the workspace and the run recovered.
	if _, err := os.Stat(filepath.Join(workspace, "passwd")); err == nil {
		t.Error("unexpected file in workspace")
	}
	if got := testutil.EventsOf(events, engine.EventCompletion); len(got) != 1 {
		t.Errorf("run did not recover: %+v", got)
	}
}

func TestLoop_UnknownToolRecovers(t *testing.T) {
	eng, _, _ := testutil.NewEngine(t,
		testutil.ToolCallResponse("no_such_tool", "tc1", `{}`),
		testutil.EndTurnResponse("recovered"),
	)

	ch, taskID, err := eng.Run(context.Background(), engine.RunRequest{
		Message: "call something unknown", AI: testutil.AI(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := testutil.Drain(t, ch)

	execs := testutil.EventsOf(events, engine.EventToolExecCompleted)
	if len(execs) != 1 || !execs[0].IsError {
		t.Fatalf("want one error result, got %+v", execs)
	}

	msgs, err := eng.Store.LoadAPI(taskID)
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	var hasErrorResult bool
	for _, m := range msgs {
		if m.ToolResult != nil && m.ToolResult.IsError {
			hasErrorResult = true
		}
	}
	if !hasErrorResult {
		t.Error("error tool result not persisted")
	}
}

func TestLoop_ReplaceInFileEdit(t *testing.T) {
	input := `{"file_path":"main.go","search":"func old() {}","replace":"func renamed() {}"}`
	eng, _, workspace := testutil.NewEngine(t,
		testutil.ToolCallResponse("replace_in_file", "tc1", input),
		testutil.CompletionCall("renamed the function"),
	)
	if err := os.WriteFile(filepath.Join(workspace, "main.go"),
		[]byte("package main\n\nfunc old() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch, _, err := eng.Run(context.Background(), engine.RunRequest{
		Message: "rename old to renamed", AI: testutil.AI(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.Drain(t, ch)

	raw, err := os.ReadFile(filepath.Join(workspace, "main.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "func renamed() {}") {
		t.Errorf("edit not applied: %q", raw)
	}
}
