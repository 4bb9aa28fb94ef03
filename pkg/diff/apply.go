package diff

import (
	"fmt"
	"sort"

	"github.com/mamaar/polyrefactor/pkg/types"
)

// Apply applies edits to src in reverse offset order so earlier offsets
// stay valid. Overlapping edits and stale OldText are rejected.
func Apply(src []byte, edits []types.Edit) ([]byte, error) {
	sorted := append([]types.Edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	for i := 1; i < len(sorted); i++ {
		later, earlier := sorted[i-1], sorted[i]
		if earlier.End > later.Start || (earlier.Start == later.Start && earlier.End > earlier.Start) {
			return nil, fmt.Errorf("overlapping edits: [%d-%d] and [%d-%d]",
				earlier.Start, earlier.End, later.Start, later.End)
		}
	}

	out := append([]byte(nil), src...)
	for _, e := range sorted {
		if e.Start < 0 || e.End > len(out) || e.Start > e.End {
			return nil, fmt.Errorf("invalid edit bounds: start=%d, end=%d, content length=%d",
				e.Start, e.End, len(out))
		}
		if e.OldText != "" && string(out[e.Start:e.End]) != e.OldText {
			return nil, fmt.Errorf("old text mismatch at %d: expected %q, found %q",
				e.Start, e.OldText, out[e.Start:e.End])
		}
		tail := append([]byte(e.NewText), out[e.End:]...)
		out = append(out[:e.Start], tail...)
	}
	return out, nil
}
