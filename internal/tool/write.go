package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeassist/codeassist/internal/fsutil"
)

// WriteFile creates or overwrites a workspace file.
type WriteFile struct{}

func (t *WriteFile) Name() string { return "write_to_file" }

func (t *WriteFile) Description() string {
	return "Write content to a file at the specified path. Creates the file and any missing parent directories, or overwrites an existing file completely."
}

func (t *WriteFile) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringProp("The path of the file to write (relative to the workspace root)"),
		"content":   stringProp("The complete content to write to the file"),
	}, "file_path", "content")
}

func (t *WriteFile) SideEffectFree() bool { return false }

func (t *WriteFile) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()

	path, ok := getString(params, "file_path")
	if !ok || path == "" {
		return NewErrorResult(t.Name(), "file_path parameter is required")
	}
	content, ok := getString(params, "content")
	if !ok {
		return NewErrorResult(t.Name(), "content parameter is required")
	}

	abs, err := tc.Guard.Resolve(path)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	var oldContent string
	existed := false
	if raw, err := os.ReadFile(abs); err == nil {
		existed = true
		oldContent = fsutil.DecodeText(raw)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return NewErrorResult(t.Name(), "failed to create parent directories: "+err.Error())
	}
	if err := fsutil.AtomicWrite(abs, []byte(content), 0644); err != nil {
		return NewErrorResult(t.Name(), "failed to write file: "+err.Error())
	}

	var out string
	if existed {
		out = fmt.Sprintf("Successfully overwrote %s (%d bytes)", path, len(content))
		if diff := unifiedDiff(path, oldContent, content); diff != "" {
			out += "\n\n" + diff
		}
	} else {
		out = fmt.Sprintf("Successfully created %s (%d bytes)", path, len(content))
	}

	return Result{
		Content: out,
		Meta: Meta{
			Title:    t.Name(),
			Subtitle: path,
			Duration: time.Since(start),
		},
	}
}

func init() {
	Register(&WriteFile{})
}
