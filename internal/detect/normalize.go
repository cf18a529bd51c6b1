// Package detect handles intake from the external recognizer: decoding its
// scan manifest, loading the referenced source images, and normalizing
// detection ids so the rest of the pipeline can key state by id safely.
package detect

import (
	"fmt"
	"strings"

	"github.com/packratdev/packrat/internal/types"
)

// NormalizeIDs returns detections with stable, non-empty, unique ids,
// preserving order. Empty ids become positional ids; colliding ids get a
// numeric suffix. Disambiguation is deterministic: the same input list
// always produces the same ids.
func NormalizeIDs(detections []types.Detection) []types.Detection {
	out := make([]types.Detection, len(detections))
	copy(out, detections)

	seen := make(map[string]bool, len(out))
	for i := range out {
		id := strings.TrimSpace(out[i].ID)
		if id == "" {
			id = fmt.Sprintf("det-%d", i+1)
		}
		if seen[id] {
			base := id
			for n := 2; ; n++ {
				id = fmt.Sprintf("%s-%d", base, n)
				if !seen[id] {
					break
				}
			}
		}
		seen[id] = true
		out[i].ID = id
	}
	return out
}
