package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/codeassist/codeassist/internal/fsutil"
)

// maxDefinitionFiles caps how many source files a single call scans.
const maxDefinitionFiles = 200

// definitionPatterns maps file extensions to regexes matching top-level
// definition lines.
var definitionPatterns = map[string][]*regexp.Regexp{
	".go": {
		regexp.MustCompile(`^func\s+(\(\s*\w+\s+\*?\w+\s*\)\s*)?\w+`),
		regexp.MustCompile(`^type\s+\w+`),
		regexp.MustCompile(`^var\s+\w+`),
		regexp.MustCompile(`^const\s+\w+`),
	},
	".py": {
		regexp.MustCompile(`^(async\s+)?def\s+\w+`),
		regexp.MustCompile(`^class\s+\w+`),
	},
	".js":  jsPatterns,
	".jsx": jsPatterns,
	".ts":  jsPatterns,
	".tsx": jsPatterns,
	".java": {
		regexp.MustCompile(`^\s*(public|protected|private)?\s*(static\s+)?(final\s+)?(abstract\s+)?(class|interface|enum|record)\s+\w+`),
		regexp.MustCompile(`^\s*(public|protected|private)\s+(static\s+)?(final\s+)?[\w<>\[\],\s]+\s+\w+\s*\(`),
	},
	".c":   cPatterns,
	".h":   cPatterns,
	".cpp": cppPatterns,
	".cc":  cppPatterns,
	".hpp": cppPatterns,
}

var jsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(export\s+)?(default\s+)?(async\s+)?function\s*\*?\s*\w+`),
	regexp.MustCompile(`^(export\s+)?class\s+\w+`),
	regexp.MustCompile(`^(export\s+)?(const|let|var)\s+\w+\s*=\s*(async\s*)?(\(|function)`),
	regexp.MustCompile(`^(export\s+)?interface\s+\w+`),
	regexp.MustCompile(`^(export\s+)?type\s+\w+\s*=`),
	regexp.MustCompile(`^(export\s+)?enum\s+\w+`),
}

var cPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(static\s+|inline\s+)*[\w\*]+[\s\*]+\w+\s*\([^;]*$`),
	regexp.MustCompile(`^(typedef\s+)?(struct|enum|union)\s+\w+`),
	regexp.MustCompile(`^#define\s+\w+`),
}

var cppPatterns = append([]*regexp.Regexp{
	regexp.MustCompile(`^(template\s*<.*>\s*)?class\s+\w+`),
	regexp.MustCompile(`^namespace\s+\w+`),
	regexp.MustCompile(`^[\w:<>~\*&]+[\s\*&]+[\w:~]+\s*\([^;]*$`),
}, cPatterns...)

// ListCodeDefinitions scans source files for top-level definitions.
type ListCodeDefinitions struct{}

func (t *ListCodeDefinitions) Name() string { return "list_code_definitions" }

func (t *ListCodeDefinitions) Description() string {
	return "List top-level code definitions (functions, classes, types) in source files at the specified path. Supports Go, Python, JavaScript, TypeScript, Java, C and C++."
}

func (t *ListCodeDefinitions) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringProp("The file or directory to scan (relative to the workspace root)"),
	}, "file_path")
}

func (t *ListCodeDefinitions) SideEffectFree() bool { return true }

func (t *ListCodeDefinitions) Execute(ctx context.Context, params map[string]any, tc Context) Result {
	start := time.Now()

	path, ok := getString(params, "file_path")
	if !ok || path == "" {
		return NewErrorResult(t.Name(), "file_path parameter is required")
	}

	abs, err := tc.Guard.Resolve(path)
	if err != nil {
		return faultResult(t.Name(), err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(t.Name(), "path not found: "+path)
		}
		return NewErrorResult(t.Name(), "failed to stat: "+err.Error())
	}

	var files []string
	if info.IsDir() {
		files, err = t.collectSourceFiles(ctx, abs, tc)
		if err != nil {
			return NewErrorResult(t.Name(), "failed to scan: "+err.Error())
		}
	} else {
		files = []string{abs}
	}

	var sb strings.Builder
	found := false
	for _, file := range files {
		patterns, ok := definitionPatterns[strings.ToLower(filepath.Ext(file))]
		if !ok {
			continue
		}
		defs := scanDefinitions(file, patterns)
		if len(defs) == 0 {
			continue
		}
		if found {
			sb.WriteString("\n")
		}
		found = true
		fmt.Fprintf(&sb, "%s:\n", tc.Guard.Rel(file))
		for _, d := range defs {
			fmt.Fprintf(&sb, "  %s\n", d)
		}
	}

	content := sb.String()
	if !found {
		content = "No code definitions found."
	}

	return Result{
		Content: content,
		Meta: Meta{
			Title:    t.Name(),
			Subtitle: path,
			Duration: time.Since(start),
		},
	}
}

func (t *ListCodeDefinitions) collectSourceFiles(ctx context.Context, root string, tc Context) ([]string, error) {
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
		if _, ok := definitionPatterns[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
			if len(files) >= maxDefinitionFiles {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// scanDefinitions returns "line: signature" entries for definition lines.
func scanDefinitions(path string, patterns []*regexp.Regexp) []string {
	raw, err := os.ReadFile(path)
	if err != nil || fsutil.IsBinary(raw) {
		return nil
	}
	var defs []string
	for i, line := range strings.Split(fsutil.DecodeText(raw), "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		for _, re := range patterns {
			if re.MatchString(trimmed) {
				defs = append(defs, fmt.Sprintf("%d: %s", i+1, trimmed))
				break
			}
		}
	}
	return defs
}

func init() {
	Register(&ListCodeDefinitions{})
}
