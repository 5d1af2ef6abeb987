package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codeassist/codeassist/internal/fsutil"
)

// ReplaceInFile performs a literal text replacement in one file.
type ReplaceInFile struct{}

func (t *ReplaceInFile) Name() string { return "replace_in_file" }

func (t *ReplaceInFile) Description() string {
	return "Replace every occurrence of a literal text fragment in a file with new text. The search text must match the file content exactly, including whitespace."
}

func (t *ReplaceInFile) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringProp("The path of the file to modify (relative to the workspace root)"),
		"search":    stringProp("The exact text to find (matched literally, not as a regex)"),
		"replace":   stringProp("The text to replace each occurrence with"),
	}, "file_path", "search", "replace")
}

func (t *ReplaceInFile) SideEffectFree() bool { return false }

func (t *ReplaceInFile) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()

	path, ok := getString(params, "file_path")
	if !ok || path == "" {
		return NewErrorResult(t.Name(), "file_path parameter is required")
	}
	search, ok := getString(params, "search")
	if !ok || search == "" {
		return NewErrorResult(t.Name(), "search parameter is required")
	}
	replace, ok := getString(params, "replace")
	if !ok {
		return NewErrorResult(t.Name(), "replace parameter is required")
	}

	abs, err := tc.Guard.Resolve(path)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(t.Name(), "file not found: "+path)
		}
		return NewErrorResult(t.Name(), "failed to read file: "+err.Error())
	}
	oldContent := fsutil.DecodeText(raw)

	count := strings.Count(oldContent, search)
	if count == 0 {
		return NewErrorResult(t.Name(),
			"search text not found in "+path+"; re-read the file and match the existing content exactly")
	}

	newContent := strings.ReplaceAll(oldContent, search, replace)
	if err := fsutil.AtomicWrite(abs, []byte(newContent), 0644); err != nil {
		return NewErrorResult(t.Name(), "failed to write file: "+err.Error())
	}

	delta := len(newContent) - len(oldContent)
	out := fmt.Sprintf("Replaced %d occurrence(s) in %s (%+d bytes)", count, path, delta)
	if count > 1 {
		out += "\nWarning: the search text matched more than once; all occurrences were replaced."
	}
	if d := unifiedDiff(path, oldContent, newContent); d != "" {
		out += "\n\n" + d
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
	Register(&ReplaceInFile{})
}
