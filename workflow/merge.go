package workflow

// Reducer defines how a child contribution merges into an accumulated value
// at a fan-out join. Joins are built from declared reducers, never from
// shared mutable state between branches.
type Reducer[T any] func(current T, update T) T

// Replace returns the last-applied update. At a fan-out join the "last"
// child is whichever the join applies last; callers must not place
// ordering-sensitive data in replace-merged fields.
func Replace[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// Append concatenates child contributions in application order.
func Append[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		out := make([]T, 0, len(current)+len(update))
		out = append(out, current...)
		out = append(out, update...)
		return out
	}
}

// AppendSetUnion concatenates child contributions, dropping duplicates by
// key and preserving first-seen order. This is the merge for join
// accumulators that must contain every branch's contribution exactly once
// regardless of completion order.
func AppendSetUnion[T any](key func(T) string) Reducer[[]T] {
	return func(current, update []T) []T {
		seen := make(map[string]struct{}, len(current)+len(update))
		out := make([]T, 0, len(current)+len(update))
		for _, v := range current {
			k := key(v)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
		for _, v := range update {
			k := key(v)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
		return out
	}
}

// Fold applies a reducer across an accumulated value and a sequence of
// child contributions; helper for writing fan-out joins.
func Fold[T any](r Reducer[T], initial T, updates []T) T {
	acc := initial
	for _, u := range updates {
		acc = r(acc, u)
	}
	return acc
}
