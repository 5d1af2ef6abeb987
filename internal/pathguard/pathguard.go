// Package pathguard confines all file access to a single workspace root.
// Every tool handler resolves its path arguments through a Guard before
// touching the filesystem.
package pathguard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/codeassist/codeassist/internal/fault"
)

// DefaultIgnoreDirs are directory names skipped during listing and searching.
// Files inside them can still be read when addressed directly.
var DefaultIgnoreDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
	".next":        true,
	".nuxt":        true,
	"coverage":     true,
	".ai":          true,
}

// Guard validates paths against a workspace root.
type Guard struct {
	root       string
	ignoreDirs map[string]bool
}

// New creates a Guard rooted at the given workspace directory. The root is
// resolved through symlinks once so later containment checks compare real
// paths.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidPath, err, "cannot resolve workspace root %q", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidPath, err, "workspace root %q does not exist", root)
	}
	return &Guard{root: resolved, ignoreDirs: DefaultIgnoreDirs}, nil
}

// Root returns the resolved workspace root.
func (g *Guard) Root() string { return g.root }

// Resolve turns a workspace-relative path into an absolute one, rejecting
// anything that escapes the root. Empty input, ".", "/" and "./" all address
// the root itself, and a leading "/" or "./" is stripped so in-root absolute
// forms are accepted. The leaf may not exist yet; in that case the nearest
// existing ancestor is resolved to catch symlink escapes.
func (g *Guard) Resolve(rel string) (string, error) {
	joined := filepath.Join(g.root, normalize(rel))

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", fault.Wrap(fault.IOError, err, "cannot resolve %s", rel)
	}

	if !within(g.root, resolved) {
		return "", fault.New(fault.InvalidPath, "path escapes workspace: %s", rel)
	}
	return joined, nil
}

// Rel converts an absolute path inside the workspace back to workspace-relative
// form with forward slashes.
func (g *Guard) Rel(abs string) string {
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// IsIgnored reports whether the given directory name is in the ignore set.
func (g *Guard) IsIgnored(name string) bool {
	return g.ignoreDirs[name]
}

// normalize strips leading "/" and "./" segments and maps empty input onto
// the workspace root.
func normalize(rel string) string {
	rel = strings.TrimSpace(rel)
	for {
		switch {
		case strings.HasPrefix(rel, "/"):
			rel = strings.TrimPrefix(rel, "/")
		case strings.HasPrefix(rel, "./"):
			rel = strings.TrimPrefix(rel, "./")
		default:
			if rel == "" || rel == "." {
				return "."
			}
			return filepath.Clean(rel)
		}
	}
}

// resolveExisting walks up from path until it finds an existing ancestor,
// resolves that through symlinks, and rejoins the non-existing suffix.
func resolveExisting(path string) (string, error) {
	var suffix []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		suffix = append(suffix, filepath.Base(current))
		current = parent
	}
}

// within reports whether target is root or inside it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../") && !filepath.IsAbs(rel))
}
