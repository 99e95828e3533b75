package formula

import (
	"maps"
	"slices"
)

// Snapshot is an immutable view of every variable at one point in time.
// With returns a modified copy; the receiver is never changed.
type Snapshot struct {
	vars map[string]Variable
}

func NewSnapshot(vars map[string]Variable) Snapshot {
	return Snapshot{vars: maps.Clone(vars)}
}

func (s Snapshot) Get(key string) (Variable, bool) {
	v, ok := s.vars[key]
	return v, ok
}

// Value returns the current value of key; ok is false when the variable is
// unknown or has not been set or computed yet.
func (s Snapshot) Value(key string) (float64, bool) {
	v, ok := s.vars[key]
	if !ok || !v.HasValue {
		return 0, false
	}
	return v.Current, true
}

func (s Snapshot) ValueOr(key string, def float64) float64 {
	if v, ok := s.Value(key); ok {
		return v
	}
	return def
}

func (s Snapshot) With(key string, value float64) Snapshot {
	next := maps.Clone(s.vars)
	if next == nil {
		next = make(map[string]Variable, 1)
	}
	v := next[key]
	v.Key = key
	v.Current = value
	v.HasValue = true
	next[key] = v
	return Snapshot{vars: next}
}

func (s Snapshot) Keys() []string {
	return slices.Sorted(maps.Keys(s.vars))
}

func (s Snapshot) Len() int { return len(s.vars) }

// Diff returns the keys, in the given order, whose value differs between s
// and other (including keys that gained a value).
func (s Snapshot) Diff(other Snapshot, keys []string) []string {
	var changed []string
	for _, k := range keys {
		a, aok := s.Value(k)
		b, bok := other.Value(k)
		if aok != bok || a != b {
			changed = append(changed, k)
		}
	}
	return changed
}
