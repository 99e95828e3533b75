package viz

import (
	"iter"
	"math"

	"github.com/san-kum/formulize/internal/formula"
)

const domainTolerance = 1e-9

// MaxSamples caps the points of one sweep. Wider domains are rejected when
// the visualization is configured.
const MaxSamples = 1_000_000

// DomainSize checks that v can serve as an x axis and returns the number of
// samples Domain will produce.
func DomainSize(v formula.Variable) (int, error) {
	lo, hi, ok := v.Bounds()
	if !ok {
		return 0, configErr("x-axis variable %q has no range", v.Key)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || hi < lo {
		return 0, configErr("x-axis variable %q has range [%g, %g]", v.Key, lo, hi)
	}
	if !(v.Step > 0) {
		return 0, configErr("x-axis variable %q has no positive step", v.Key)
	}

	n := math.Floor((hi-lo)/v.Step+domainTolerance) + 1
	if math.IsNaN(n) || n > MaxSamples {
		return 0, configErr("x-axis variable %q: [%g, %g] with step %g exceeds %d samples",
			v.Key, lo, hi, v.Step, MaxSamples)
	}
	return int(n), nil
}

// Domain returns the x samples for v: min, min+step, ... and finally max
// itself, so the last sample never drifts from the declared upper bound.
// Samples are computed as they are consumed.
func Domain(v formula.Variable) (iter.Seq[float64], error) {
	n, err := DomainSize(v)
	if err != nil {
		return nil, err
	}
	lo, hi, _ := v.Bounds()
	step := v.Step

	return func(yield func(float64) bool) {
		for i := range n - 1 {
			if !yield(lo + float64(i)*step) {
				return
			}
		}
		yield(hi)
	}, nil
}

func configErr(format string, args ...any) error {
	ce := &formula.ConfigurationError{}
	ce.Add(nil, format, args...)
	return ce
}
