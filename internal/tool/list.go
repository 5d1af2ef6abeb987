package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codeassist/codeassist/internal/cache"
)

const (
	// defaultListMaxResults caps listing output.
	defaultListMaxResults = 1000
	// defaultListMaxDepth bounds recursion relative to the listed path.
	defaultListMaxDepth = 10
)

// listCache memoizes directory listings briefly; repeated listings of big
// trees are common while the model orients itself.
var listCache = cache.NewLRU[string, string](50, 3*time.Minute)

// ListFiles lists directory contents, optionally recursively.
type ListFiles struct{}

func (t *ListFiles) Name() string { return "list_files" }

func (t *ListFiles) Description() string {
	return "List files and directories at the specified path. Directories are suffixed with '/'. Set recursive to walk the subtree, bounded by max_depth."
}

func (t *ListFiles) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":        stringProp("The directory to list (relative to the workspace root, '.' for the root)"),
		"recursive":   boolProp("Whether to list files recursively (default false)"),
		"max_depth":   intProp("Maximum recursion depth below path (default 10)"),
		"max_results": intProp("Maximum number of entries to return (default 1000)"),
	})
}

func (t *ListFiles) SideEffectFree() bool { return true }

func (t *ListFiles) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()

	path := getStringDefault(params, "path", ".")
	recursive := getBoolDefault(params, "recursive", false)
	maxDepth := getIntDefault(params, "max_depth", defaultListMaxDepth)
	if maxDepth <= 0 {
		maxDepth = defaultListMaxDepth
	}
	maxResults := getIntDefault(params, "max_results", defaultListMaxResults)
	if maxResults <= 0 {
		maxResults = defaultListMaxResults
	}

	abs, err := tc.Guard.Resolve(path)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	cacheKey := fmt.Sprintf("%s\x00%t\x00%d\x00%d", abs, recursive, maxDepth, maxResults)
	if cached, ok := listCache.Get(cacheKey); ok {
		return Result{
			Content: cached,
			Meta:    Meta{Title: t.Name(), Subtitle: path, Duration: time.Since(start)},
		}
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(t.Name(), "directory not found: "+path)
		}
		return NewErrorResult(t.Name(), "failed to stat: "+err.Error())
	}
	if !info.IsDir() {
		return NewErrorResult(t.Name(), "not a directory: "+path)
	}

	var entries []string
	if recursive {
		entries, err = t.walk(ctx, abs, maxDepth, maxResults, tc)
	} else {
		entries, err = t.listOne(abs)
	}
	if err != nil {
		return NewErrorResult(t.Name(), "failed to list: "+err.Error())
	}

	sort.Strings(entries)
	if len(entries) > maxResults {
		entries = entries[:maxResults]
	}
	content := strings.Join(entries, "\n")
	if len(entries) == 0 {
		content = "(empty directory)"
	}
	if len(entries) >= maxResults {
		content += fmt.Sprintf("\n... (truncated at %d entries)", maxResults)
	}
	listCache.Put(cacheKey, content)

	return Result{
		Content: content,
		Meta: Meta{
			Title:    t.Name(),
			Subtitle: path,
			Duration: time.Since(start),
		},
	}
}

func (t *ListFiles) listOne(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		entries = append(entries, name)
	}
	return entries, nil
}

func (t *ListFiles) walk(ctx context.Context, root string, maxDepth, maxResults int, tc Context) ([]string, error) {
	var entries []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}
		if d.IsDir() && tc.Guard.IsIgnored(d.Name()) {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1
		if d.IsDir() {
			if depth >= maxDepth {
				entries = append(entries, rel+"/")
				return filepath.SkipDir
			}
			rel += "/"
		}
		entries = append(entries, rel)
		if len(entries) >= maxResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, err
	}
	return entries, nil
}

func init() {
	Register(&ListFiles{})
}
