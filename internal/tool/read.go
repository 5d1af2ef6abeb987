package tool

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/codeassist/codeassist/internal/fsutil"
)

// defaultReadMaxSize bounds how much of a file one read returns.
const defaultReadMaxSize = 100 * 1024

// ReadFile reads a workspace file and returns its content, truncated to
// max_size bytes.
type ReadFile struct{}

func (t *ReadFile) Name() string { return "read_file" }

func (t *ReadFile) Description() string {
	return "Read the contents of a file at the specified path, relative to the workspace root. Files larger than max_size bytes are truncated."
}

func (t *ReadFile) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringProp("The path of the file to read (relative to the workspace root)"),
		"max_size":  intProp("Maximum number of bytes to read (default 102400)"),
	}, "file_path")
}

func (t *ReadFile) SideEffectFree() bool { return true }

func (t *ReadFile) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()

	path, _ := getString(params, "file_path")
	maxSize := getIntDefault(params, "max_size", defaultReadMaxSize)
	if maxSize <= 0 {
		maxSize = defaultReadMaxSize
	}

	abs, err := tc.Guard.Resolve(path)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(t.Name(), "file not found: "+path)
		}
		return NewErrorResult(t.Name(), "failed to read file: "+err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return NewErrorResult(t.Name(), "failed to stat file: "+err.Error())
	}
	if info.IsDir() {
		return NewErrorResult(t.Name(), "not a file: "+path)
	}

	content, err := io.ReadAll(io.LimitReader(f, int64(maxSize)))
	if err != nil {
		return NewErrorResult(t.Name(), "failed to read file: "+err.Error())
	}

	if fsutil.IsBinary(content) {
		return NewErrorResult(t.Name(), "cannot read binary file: "+path)
	}

	// The truncation note rides in the content so the model sees it.
	text := fsutil.DecodeText(content)
	subtitle := path
	if info.Size() > int64(maxSize) {
		subtitle = fmt.Sprintf("%s (truncated to %d bytes)", path, maxSize)
		text += fmt.Sprintf("\n\n[File truncated: showing first %d of %d bytes]", maxSize, info.Size())
	}

	return Result{
		Content: text,
		Meta: Meta{
			Title:    t.Name(),
			Subtitle: subtitle,
			Duration: time.Since(start),
		},
	}
}

func init() {
	Register(&ReadFile{})
}
