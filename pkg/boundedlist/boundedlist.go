// Package boundedlist implements the most-recent-first capped list shared by
// the activity log and the recently viewed persons cache.
package boundedlist

// Prepend returns a new slice with item at index 0 followed by list, with
// entries matching item under same removed (when same is non-nil) and the
// tail truncated so the result never exceeds max. list is not modified.
func Prepend[T any](list []T, item T, max int, same func(a, b T) bool) []T {
	if max <= 0 {
		return []T{}
	}

	out := make([]T, 0, min(len(list)+1, max))
	out = append(out, item)
	for _, existing := range list {
		if len(out) == max {
			break
		}
		if same != nil && same(existing, item) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// Truncate returns at most the first max entries of list as a new slice.
func Truncate[T any](list []T, max int) []T {
	if max < 0 {
		max = 0
	}
	n := min(len(list), max)
	out := make([]T, n)
	copy(out, list[:n])
	return out
}
