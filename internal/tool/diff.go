package tool

import (
	"fmt"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// unifiedDiff renders a unified diff between two versions of a file for
// inclusion in tool results and ui messages.
func unifiedDiff(rel, oldContent, newContent string) string {
	edits := myers.ComputeEdits(span.URIFromPath(rel), oldContent, newContent)
	return fmt.Sprint(gotextdiff.ToUnified("a/"+rel, "b/"+rel, oldContent, edits))
}
