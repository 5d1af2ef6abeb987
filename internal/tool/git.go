package tool

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// runGit executes a git command in the workspace and renders output/errors
// in a uniform way.
func runGit(ctx context.Context, tc Context, name string, args ...string) Result {
	start := time.Now()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = tc.Workspace()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return NewErrorResult(name, fmt.Sprintf("git %s failed: %v\n%s",
			args[0], err, strings.TrimSpace(string(output))))
	}

	content := strings.TrimSpace(string(output))
	if content == "" {
		content = "Nothing to report."
	}

	return Result{
		Content: content,
		Meta: Meta{
			Title:    name,
			Subtitle: "git " + strings.Join(args, " "),
			Duration: time.Since(start),
		},
	}
}

// validateGitPath guards an optional file_path parameter.
func validateGitPath(params map[string]any, tc Context) (string, error) {
	filePath := getStringDefault(params, "file_path", "")
	if filePath == "" {
		return "", nil
	}
	if _, err := tc.Guard.Resolve(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}

// GitStatus shows the working tree status.
type GitStatus struct{}

func (t *GitStatus) Name() string        { return "git_status" }
func (t *GitStatus) Description() string { return "Show the git working tree status of the workspace." }
func (t *GitStatus) SideEffectFree() bool { return true }

func (t *GitStatus) Parameters() map[string]any {
	return objectSchema(map[string]any{})
}

func (t *GitStatus) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	return runGit(ctx, tc, t.Name(), "status")
}

// GitDiff shows changes in the working tree or the index.
type GitDiff struct{}

func (t *GitDiff) Name() string { return "git_diff" }
func (t *GitDiff) Description() string {
	return "Show git changes. Set staged to diff the index; optionally limit to a single file."
}
func (t *GitDiff) SideEffectFree() bool { return true }

func (t *GitDiff) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringProp("Optional file to diff (relative to the workspace root)"),
		"staged":    boolProp("Diff staged changes instead of the working tree (default false)"),
	})
}

func (t *GitDiff) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	filePath, err := validateGitPath(params, tc)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	args := []string{"diff"}
	if getBoolDefault(params, "staged", false) {
		args = append(args, "--staged")
	}
	if filePath != "" {
		args = append(args, "--", filePath)
	}
	return runGit(ctx, tc, t.Name(), args...)
}

// GitLog shows recent commit history.
type GitLog struct{}

func (t *GitLog) Name() string { return "git_log" }
func (t *GitLog) Description() string {
	return "Show recent git commits, newest first. Optionally limit the count or filter by file."
}
func (t *GitLog) SideEffectFree() bool { return true }

func (t *GitLog) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"limit":     intProp("Maximum number of commits to show (default 10)"),
		"file_path": stringProp("Optional file to show history for (relative to the workspace root)"),
	})
}

func (t *GitLog) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	filePath, err := validateGitPath(params, tc)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	limit := getIntDefault(params, "limit", 10)
	if limit < 1 {
		limit = 10
	}

	args := []string{"log", "--oneline", "--decorate", "-n", strconv.Itoa(limit)}
	if filePath != "" {
		args = append(args, "--", filePath)
	}
	return runGit(ctx, tc, t.Name(), args...)
}

// GitBranch lists, creates, or switches branches.
type GitBranch struct{}

func (t *GitBranch) Name() string { return "git_branch" }
func (t *GitBranch) Description() string {
	return "Manage git branches: list all, show current, create a new branch, or switch to an existing one."
}

// SideEffectFree is false: create and switch mutate the repository.
func (t *GitBranch) SideEffectFree() bool { return false }

func (t *GitBranch) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"action":      enumProp("The branch operation to perform", "list", "current", "create", "switch"),
		"branch_name": stringProp("The branch name (required for create and switch)"),
	}, "action")
}

func (t *GitBranch) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	action, ok := getString(params, "action")
	if !ok || action == "" {
		return NewErrorResult(t.Name(), "action parameter is required")
	}
	branchName := getStringDefault(params, "branch_name", "")

	switch action {
	case "list":
		return runGit(ctx, tc, t.Name(), "branch", "--list")
	case "current":
		return runGit(ctx, tc, t.Name(), "branch", "--show-current")
	case "create":
		if branchName == "" {
			return NewErrorResult(t.Name(), "branch_name is required for create")
		}
		return runGit(ctx, tc, t.Name(), "checkout", "-b", branchName)
	case "switch":
		if branchName == "" {
			return NewErrorResult(t.Name(), "branch_name is required for switch")
		}
		return runGit(ctx, tc, t.Name(), "checkout", branchName)
	default:
		return NewErrorResult(t.Name(), "unknown action: "+action)
	}
}

func init() {
	Register(&GitStatus{})
	Register(&GitDiff{})
	Register(&GitLog{})
	Register(&GitBranch{})
}
