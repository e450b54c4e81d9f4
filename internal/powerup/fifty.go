package powerup

import (
	"fmt"
	"math/rand"
	"sort"
)

// PickHidden chooses total-2 option indices to hide, never the correct one
// nor the current selection. It is what a room server does on 50-50.
func PickHidden(total, correct int, selected *int, rnd *rand.Rand) []int {
	if total < 3 || correct < 0 || correct >= total {
		return nil
	}
	var candidates []int
	for i := 0; i < total; i++ {
		if i == correct || (selected != nil && *selected == i) {
			continue
		}
		candidates = append(candidates, i)
	}
	want := total - 2
	if len(candidates) > want {
		swap := func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] }
		if rnd != nil {
			rnd.Shuffle(len(candidates), swap)
		} else {
			rand.Shuffle(len(candidates), swap)
		}
		candidates = candidates[:want]
	}
	sort.Ints(candidates)
	return candidates
}

// ValidateHidden checks a server-provided hidden set against what the client
// can verify: size total-2, in range, distinct, selection kept visible.
func ValidateHidden(hidden []int, total int, selected *int) error {
	if len(hidden) != total-2 {
		return fmt.Errorf("expected %d hidden options, got %d", total-2, len(hidden))
	}
	seen := make(map[int]bool, len(hidden))
	for _, h := range hidden {
		if h < 0 || h >= total {
			return fmt.Errorf("hidden option %d out of range", h)
		}
		if seen[h] {
			return fmt.Errorf("hidden option %d repeated", h)
		}
		if selected != nil && *selected == h {
			return fmt.Errorf("hidden option %d is the current selection", h)
		}
		seen[h] = true
	}
	return nil
}
