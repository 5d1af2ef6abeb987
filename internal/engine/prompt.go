package engine

import (
	"fmt"
	"strings"
)

// buildSystemPrompt composes the system prompt for a run. Tool schemas are
// passed separately through the provider tool definitions; the prompt only
// covers identity and usage rules.
func buildSystemPrompt(workspace string, toolNames []string) string {
	var sb strings.Builder

	sb.WriteString("You are a skilled software engineering assistant working inside a user's repository.\n\n")
	fmt.Fprintf(&sb, "Workspace root: %s\n", workspace)
	sb.WriteString("All file paths you use must be relative to the workspace root. You cannot access anything outside it.\n\n")

	sb.WriteString("Rules:\n")
	sb.WriteString("- Work step by step. Use at most a few tools per response and wait for their results before continuing.\n")
	sb.WriteString("- Read a file before you modify it.\n")
	sb.WriteString("- Prefer replace_in_file for targeted edits; use write_to_file only for new files or full rewrites.\n")
	fmt.Fprintf(&sb, "- When the task is done, call %s with a summary of what you did. Do not call it before the work is complete.\n", "attempt_completion")
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Available tools: %s\n", strings.Join(toolNames, ", "))

	return sb.String()
}
