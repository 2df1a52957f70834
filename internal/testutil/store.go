package testutil

import "github.com/servorahq/servora/internal/types"

// paginate applies the filter's limit and offset to an already sorted slice.
func paginate[T any](items []T, filter types.Filter) []T {
	f := filter.WithDefaults()
	if f.Offset >= len(items) {
		return nil
	}
	items = items[f.Offset:]
	if len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items
}
