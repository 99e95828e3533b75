package registry

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/formulize/internal/formula"
)

// stepTolerance is the fraction of a step within which a value counts as
// already aligned.
const stepTolerance = 1e-9

// Registry stores variable metadata and current values.
type Registry struct {
	vars  map[string]formula.Variable
	order []string
}

func New() *Registry {
	return &Registry{vars: make(map[string]formula.Variable)}
}

func (r *Registry) Register(key string, spec formula.VariableSpec) error {
	if _, ok := r.vars[key]; ok {
		return fmt.Errorf("%w: %s", formula.ErrDuplicateVariable, key)
	}
	r.vars[key] = formula.NewVariable(key, spec)
	r.order = append(r.order, key)
	return nil
}

func (r *Registry) Get(key string) (formula.Variable, error) {
	v, ok := r.vars[key]
	if !ok {
		return formula.Variable{}, fmt.Errorf("%w: %s", formula.ErrUnknownVariable, key)
	}
	return v, nil
}

func (r *Registry) Has(key string) bool {
	_, ok := r.vars[key]
	return ok
}

// Keys returns variable keys in registration order.
func (r *Registry) Keys() []string { return slices.Clone(r.order) }

// Validate checks value against the input constraints of key and returns the
// value that SetInput would store. adjusted reports a step alignment.
func (r *Registry) Validate(key string, value float64) (applied float64, adjusted bool, err error) {
	v, err := r.Get(key)
	if err != nil {
		return 0, false, err
	}
	if !v.IsInput() {
		return 0, false, fmt.Errorf("%w: %s", formula.ErrNotAnInput, key)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, &formula.OutOfRangeError{Key: key, Value: value, Min: math.Inf(-1), Max: math.Inf(1)}
	}

	lo, hi, bounded := v.Bounds()
	if bounded && (value < lo || value > hi) {
		return 0, false, &formula.OutOfRangeError{Key: key, Value: value, Min: lo, Max: hi}
	}

	applied = Align(value, v.Step)
	if bounded {
		applied = math.Min(math.Max(applied, lo), hi)
	}
	return applied, applied != value, nil
}

// SetInput validates and stores an input value.
func (r *Registry) SetInput(key string, value float64) (applied float64, adjusted bool, err error) {
	applied, adjusted, err = r.Validate(key, value)
	if err != nil {
		return 0, false, err
	}
	r.store(key, applied)
	return applied, adjusted, nil
}

// SetComputed stores a formula result. Inputs are refused; they only change
// through SetInput.
func (r *Registry) SetComputed(key string, value float64) error {
	v, err := r.Get(key)
	if err != nil {
		return err
	}
	if v.IsInput() {
		return fmt.Errorf("%w: computed value written to input %s", formula.ErrNotAnInput, key)
	}
	r.store(key, value)
	return nil
}

func (r *Registry) store(key string, value float64) {
	v := r.vars[key]
	v.Current = value
	v.HasValue = true
	r.vars[key] = v
}

func (r *Registry) Snapshot() formula.Snapshot {
	return formula.NewSnapshot(r.vars)
}

// Commit copies the values of keys from snap into the registry. Input values
// must pass Validate unchanged; the rest are written through SetComputed.
// Nothing is written when any key is rejected.
func (r *Registry) Commit(snap formula.Snapshot, keys []string) error {
	for _, k := range keys {
		v, err := r.Get(k)
		if err != nil {
			return err
		}
		val, ok := snap.Value(k)
		if !ok || !v.IsInput() {
			continue
		}
		applied, _, err := r.Validate(k, val)
		if err != nil {
			return err
		}
		if applied != val {
			return fmt.Errorf("%s: committed value %g is off the step grid", k, val)
		}
	}

	for _, k := range keys {
		val, ok := snap.Value(k)
		if !ok {
			continue
		}
		if r.vars[k].IsInput() {
			r.store(k, val)
			continue
		}
		if err := r.SetComputed(k, val); err != nil {
			return err
		}
	}
	return nil
}

// Variables returns every variable in registration order.
func (r *Registry) Variables() []formula.Variable {
	out := make([]formula.Variable, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.vars[k])
	}
	return out
}

// Inputs returns the input variable keys in registration order.
func (r *Registry) Inputs() []string {
	var keys []string
	for _, k := range r.order {
		if r.vars[k].IsInput() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Align snaps value to the nearest multiple of step. Values already within
// tolerance of a multiple are returned unchanged.
func Align(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	n := math.Round(value / step)
	aligned := n * step
	if math.Abs(aligned-value) <= stepTolerance*step {
		return value
	}
	return aligned
}
