package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeassist/codeassist/internal/cache"
	"github.com/codeassist/codeassist/internal/fsutil"
)

const (
	// defaultSearchMaxResults caps total matches across all files.
	defaultSearchMaxResults = 50
	// maxSearchFiles bounds how many files one call scans.
	maxSearchFiles = 100
	// maxSearchFileSize skips files larger than this.
	maxSearchFileSize = 1 << 20
	// searchContextLines of context either side of a match.
	searchContextLines = 2
	// searchWorkers is the scan pool size.
	searchWorkers = 4
)

// searchCache serves repeated identical searches without rescanning the tree.
var searchCache = cache.NewLRU[string, string](100, 5*time.Minute)

// SearchFiles searches file contents with a regular expression.
type SearchFiles struct{}

func (t *SearchFiles) Name() string { return "search_files" }

func (t *SearchFiles) Description() string {
	return "Search files under a directory for a regular expression. Returns matches with line numbers and surrounding context. Optionally filter files with a glob pattern."
}

func (t *SearchFiles) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"pattern":        stringProp("The regular expression to search for (Go regexp syntax)"),
		"path":           stringProp("The directory to search in (relative to the workspace root, default '.')"),
		"file_pattern":   stringProp("Optional glob pattern to filter file names (e.g. '*.go')"),
		"case_sensitive": boolProp("Whether matching is case sensitive (default false)"),
		"max_results":    intProp("Maximum number of matches to return (default 50)"),
	}, "pattern")
}

func (t *SearchFiles) SideEffectFree() bool { return true }

func (t *SearchFiles) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()

	pattern, ok := getString(params, "pattern")
	if !ok || pattern == "" {
		return NewErrorResult(t.Name(), "pattern parameter is required")
	}
	path := getStringDefault(params, "path", ".")
	filePattern := getStringDefault(params, "file_pattern", "")
	caseSensitive := getBoolDefault(params, "case_sensitive", false)
	maxResults := getIntDefault(params, "max_results", defaultSearchMaxResults)
	if maxResults <= 0 {
		maxResults = defaultSearchMaxResults
	}

	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return NewErrorResult(t.Name(), "invalid pattern: "+err.Error())
	}
	if filePattern != "" && !doublestar.ValidatePattern(filePattern) {
		return NewErrorResult(t.Name(), "invalid file_pattern: "+filePattern)
	}

	abs, err := tc.Guard.Resolve(path)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	cacheKey := fmt.Sprintf("%s\x00%s\x00%s\x00%t\x00%d", abs, pattern, filePattern, caseSensitive, maxResults)
	if cached, ok := searchCache.Get(cacheKey); ok {
		return Result{
			Content: cached,
			Meta:    Meta{Title: t.Name(), Subtitle: path, Duration: time.Since(start)},
		}
	}

	files, err := t.collect(ctx, abs, filePattern, tc)
	if err != nil {
		return NewErrorResult(t.Name(), "search failed: "+err.Error())
	}

	content := t.scan(ctx, files, re, maxResults, tc)
	searchCache.Put(cacheKey, content)

	return Result{
		Content: content,
		Meta: Meta{
			Title:    t.Name(),
			Subtitle: fmt.Sprintf("%s in %s", pattern, path),
			Duration: time.Since(start),
		},
	}
}

// collect gathers candidate files under root, skipping ignored directories,
// oversized files, and anything past the scan cap.
func (t *SearchFiles) collect(ctx context.Context, root, filePattern string, tc Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && tc.Guard.IsIgnored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filePattern != "" {
			if match, _ := doublestar.Match(filePattern, d.Name()); !match {
				return nil
			}
		}
		if info, err := d.Info(); err != nil || info.Size() > maxSearchFileSize {
			return nil
		}
		files = append(files, path)
		if len(files) >= maxSearchFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, err
	}
	return files, nil
}

// scan greps the candidate files on a small worker pool, then assembles
// output in file order so results are deterministic regardless of worker
// scheduling.
func (t *SearchFiles) scan(ctx context.Context, files []string, re *regexp.Regexp, maxResults int, tc Context) string {
	hits := make([][]string, len(files))

	sem := make(chan struct{}, searchWorkers)
	var wg sync.WaitGroup
	for i, path := range files {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			hits[i] = t.grepFile(path, re, maxResults, tc)
		}(i, path)
	}
	wg.Wait()

	var sb strings.Builder
	total := 0
	limited := false
	for i, snippets := range hits {
		if len(snippets) == 0 || total >= maxResults {
			if len(snippets) > 0 {
				limited = true
			}
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		rel, _ := filepath.Rel(tc.Workspace(), files[i])
		fmt.Fprintf(&sb, "%s\n", filepath.ToSlash(rel))
		for _, snippet := range snippets {
			if total >= maxResults {
				limited = true
				break
			}
			sb.WriteString(snippet)
			total++
		}
	}

	if total == 0 {
		return fmt.Sprintf("No matches found (%d files scanned).", len(files))
	}
	header := fmt.Sprintf("Found %d match(es) in %d files scanned:\n\n", total, len(files))
	if limited || total >= maxResults {
		header = fmt.Sprintf("Found %d match(es) (result limit reached, %d files scanned):\n\n", total, len(files))
	}
	return header + sb.String()
}

// grepFile returns one rendered snippet per matching line, capped at
// maxResults per file.
func (t *SearchFiles) grepFile(path string, re *regexp.Regexp, maxResults int, tc Context) []string {
	raw, err := os.ReadFile(path)
	if err != nil || fsutil.IsBinary(raw) {
		return nil
	}

	lines := strings.Split(fsutil.DecodeText(raw), "\n")
	var snippets []string
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		var sb strings.Builder
		for j := i - searchContextLines; j < i; j++ {
			if j >= 0 {
				fmt.Fprintf(&sb, "  %d | %s\n", j+1, lines[j])
			}
		}
		fmt.Fprintf(&sb, "> %d | %s\n", i+1, line)
		for j := i + 1; j <= i+searchContextLines && j < len(lines); j++ {
			fmt.Fprintf(&sb, "  %d | %s\n", j+1, lines[j])
		}
		snippets = append(snippets, sb.String())
		if len(snippets) >= maxResults {
			break
		}
	}
	return snippets
}

func init() {
	Register(&SearchFiles{})
}
