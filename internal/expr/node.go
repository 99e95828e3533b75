package expr

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Evaluation errors. Callers wrap them with the formula being computed.
var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrUndefined      = errors.New("undefined variable")
	ErrDomain         = errors.New("domain error")
)

// Lookup resolves a variable reference; ok is false when it has no value.
type Lookup func(name string) (value float64, ok bool)

// Node is a parsed expression tree.
type Node interface {
	Eval(lookup Lookup) (float64, error)
	String() string
	walk(fn func(Node))
}

type numberNode struct{ v float64 }

func (n numberNode) Eval(Lookup) (float64, error) { return n.v, nil }
func (n numberNode) String() string               { return strconv.FormatFloat(n.v, 'g', -1, 64) }
func (n numberNode) walk(fn func(Node))           { fn(n) }

type varNode struct{ name string }

func (n varNode) Eval(lookup Lookup) (float64, error) {
	v, ok := lookup(n.name)
	if !ok {
		return 0, fmt.Errorf("%w {%s}", ErrUndefined, n.name)
	}
	return v, nil
}

func (n varNode) String() string     { return "{" + n.name + "}" }
func (n varNode) walk(fn func(Node)) { fn(n) }

type unaryNode struct {
	op byte
	x  Node
}

func (n unaryNode) Eval(lookup Lookup) (float64, error) {
	x, err := n.x.Eval(lookup)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -x, nil
	}
	return x, nil
}

func (n unaryNode) String() string { return "(" + string(n.op) + n.x.String() + ")" }
func (n unaryNode) walk(fn func(Node)) {
	fn(n)
	n.x.walk(fn)
}

type binaryNode struct {
	op          byte
	left, right Node
}

func (n binaryNode) Eval(lookup Lookup) (float64, error) {
	a, err := n.left.Eval(lookup)
	if err != nil {
		return 0, err
	}
	b, err := n.right.Eval(lookup)
	if err != nil {
		return 0, err
	}

	var r float64
	switch n.op {
	case '+':
		r = a + b
	case '-':
		r = a - b
	case '*':
		r = a * b
	case '/':
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		r = a / b
	case '^':
		if a == 0 && b < 0 {
			return 0, ErrDivisionByZero
		}
		r = math.Pow(a, b)
	default:
		return 0, fmt.Errorf("unknown operator %q", n.op)
	}
	return finite(n, r)
}

func (n binaryNode) String() string {
	return "(" + n.left.String() + " " + string(n.op) + " " + n.right.String() + ")"
}

func (n binaryNode) walk(fn func(Node)) {
	fn(n)
	n.left.walk(fn)
	n.right.walk(fn)
}

type callNode struct {
	name string
	fn   func(float64) (float64, bool)
	arg  Node
}

func (n callNode) Eval(lookup Lookup) (float64, error) {
	x, err := n.arg.Eval(lookup)
	if err != nil {
		return 0, err
	}
	r, ok := n.fn(x)
	if !ok {
		return 0, fmt.Errorf("%w: %s(%g)", ErrDomain, n.name, x)
	}
	return finite(n, r)
}

func (n callNode) String() string { return n.name + "(" + n.arg.String() + ")" }
func (n callNode) walk(fn func(Node)) {
	fn(n)
	n.arg.walk(fn)
}

func finite(n Node, r float64) (float64, error) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrDomain, n.String())
	}
	return r, nil
}

var functions = map[string]func(float64) (float64, bool){
	"sqrt":  func(x float64) (float64, bool) { return math.Sqrt(x), x >= 0 },
	"abs":   func(x float64) (float64, bool) { return math.Abs(x), true },
	"exp":   func(x float64) (float64, bool) { return math.Exp(x), true },
	"ln":    func(x float64) (float64, bool) { return math.Log(x), x > 0 },
	"log10": func(x float64) (float64, bool) { return math.Log10(x), x > 0 },
	"sin":   func(x float64) (float64, bool) { return math.Sin(x), true },
	"cos":   func(x float64) (float64, bool) { return math.Cos(x), true },
	"tan":   func(x float64) (float64, bool) { return math.Tan(x), true },
}

var constants = map[string]float64{
	"pi": math.Pi,
}

// Vars returns the sorted, de-duplicated variable names referenced by n.
func Vars(n Node) []string {
	var names []string
	n.walk(func(x Node) {
		if v, ok := x.(varNode); ok && !slices.Contains(names, v.name) {
			names = append(names, v.name)
		}
	})
	slices.Sort(names)
	return names
}
