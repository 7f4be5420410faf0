package calculator

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

type subFn struct{}

func (subFn) Arity() int         { return 2 }
func (subFn) ReturnType() string { return "float64" }
func (subFn) Evaluate(args []any) (any, error) {
	l, r, err := twoFloats("sub", args)
	if err != nil {
		return nil, err
	}
	return l - r, nil
}

type addFn struct{}

func (addFn) Arity() int         { return 2 }
func (addFn) ReturnType() string { return "float64" }
func (addFn) Evaluate(args []any) (any, error) {
	l, r, err := twoFloats("add", args)
	if err != nil {
		return nil, err
	}
	return l + r, nil
}

type nowFn struct{}

func (nowFn) Arity() int         { return 0 }
func (nowFn) ReturnType() string { return "time.Time" }
func (nowFn) Evaluate(args []any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("calculator: now takes no arguments")
	}
	return time.Now().UTC(), nil
}

func twoFloats(name string, args []any) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("calculator: %s expects 2 arguments, got %d", name, len(args))
	}
	l, lok := toFloat64(args[0])
	r, rok := toFloat64(args[1])
	if !lok || !rok {
		return 0, 0, fmt.Errorf("calculator: %s expects numeric arguments, got %T and %T", name, args[0], args[1])
	}
	return l, r, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Builtins returns the native calculators: sub, add, now.
func Builtins() map[string]Calculator {
	return map[string]Calculator{
		"sub": subFn{},
		"add": addFn{},
		"now": nowFn{},
	}
}

// ScriptCalculator wraps a compiled goja expression. Arguments are exposed
// to the script as the `args` array global; the expression's value becomes
// the calculator's result. Each evaluation runs in a fresh goja.Runtime,
// since goja runtimes are not safe for concurrent reuse and the engine's
// single-writer model makes per-call instantiation cheap.
type ScriptCalculator struct {
	program *goja.Program
	arity   int
}

// NewScriptCalculator compiles expr once at registration time.
func NewScriptCalculator(expr string, arity int) (*ScriptCalculator, error) {
	program, err := goja.Compile("calculator", expr, true)
	if err != nil {
		return nil, fmt.Errorf("calculator: compile script: %w", err)
	}
	return &ScriptCalculator{program: program, arity: arity}, nil
}

func (c *ScriptCalculator) Arity() int         { return c.arity }
func (c *ScriptCalculator) ReturnType() string { return "any" }

func (c *ScriptCalculator) Evaluate(args []any) (any, error) {
	if c.arity >= 0 && len(args) != c.arity {
		return nil, fmt.Errorf("calculator: expected %d arguments, got %d", c.arity, len(args))
	}
	vm := goja.New()
	if err := vm.Set("args", args); err != nil {
		return nil, err
	}
	result, err := vm.RunProgram(c.program)
	if err != nil {
		return nil, fmt.Errorf("calculator: evaluate script: %w", err)
	}
	return result.Export(), nil
}
