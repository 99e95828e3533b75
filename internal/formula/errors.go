package formula

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for engine operations.
var (
	// ErrConfiguration indicates a configuration that cannot be started.
	ErrConfiguration = errors.New("formula: invalid configuration")

	// ErrDuplicateVariable indicates a variable key registered twice.
	ErrDuplicateVariable = errors.New("formula: duplicate variable")

	// ErrUnknownVariable indicates a reference to a variable that was never registered.
	ErrUnknownVariable = errors.New("formula: unknown variable")

	// ErrNotAnInput indicates an attempt to set a dependent variable directly.
	ErrNotAnInput = errors.New("formula: variable is not an input")

	// ErrOutOfRange indicates an input value outside its declared range.
	ErrOutOfRange = errors.New("formula: value out of range")

	// ErrEvaluation indicates an arithmetic or closure failure while computing a formula.
	ErrEvaluation = errors.New("formula: evaluation failed")

	// ErrParse indicates a malformed expression.
	ErrParse = errors.New("formula: parse error")

	// ErrCyclicDependency indicates formulas that (transitively) read their own output.
	ErrCyclicDependency = errors.New("formula: cyclic dependency")

	// ErrClosed indicates use of a provider after teardown.
	ErrClosed = errors.New("formula: provider torn down")
)

type OutOfRangeError struct {
	Key   string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s: %g outside [%g, %g]", e.Key, e.Value, e.Min, e.Max)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// EvaluationError wraps a failure with the formula that produced it.
type EvaluationError struct {
	FormulaID string
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.FormulaID, e.Err)
}

func (e *EvaluationError) Unwrap() []error { return []error{ErrEvaluation, e.Err} }

// ParseError reports a malformed expression. Err optionally carries a
// second sentinel, such as ErrUnknownVariable for a dangling reference.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at %d: %s", e.Input, e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// CyclicDependencyError names the formulas forming a cycle. The first
// formula is repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// ConfigurationError collects every problem found while validating a
// configuration. Causes holds the underlying errors that carry a taxonomy
// sentinel, so errors.Is(err, ErrCyclicDependency) works on the aggregate.
type ConfigurationError struct {
	Problems []string
	Causes   []error
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration (%d problems):\n- %s", len(e.Problems), strings.Join(e.Problems, "\n- "))
}

func (e *ConfigurationError) Unwrap() []error {
	return append([]error{ErrConfiguration}, e.Causes...)
}

// Add records a problem; err may be nil.
func (e *ConfigurationError) Add(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
		e.Causes = append(e.Causes, err)
	}
	e.Problems = append(e.Problems, msg)
}

// Err returns e when problems were recorded and nil otherwise.
func (e *ConfigurationError) Err() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
