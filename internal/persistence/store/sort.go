package store

import (
	"sort"

	"somnarium.ai/internal/concoction"
)

// SortNewestFirst is stable, so callers control tie order through input order.
func SortNewestFirst(cs []concoction.Concoction) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}
