package predicate

import (
	"fmt"
	"reflect"
	"time"

	"github.com/dop251/goja"
)

// Operator symbols supported natively.
const (
	OpEq  = "=="
	OpNeq = "!="
	OpGt  = ">"
	OpGte = ">="
	OpLt  = "<"
	OpLte = "<="
	OpIn  = "in"
)

type equality struct{ op string }

func (equality) Evaluate(op string, l, r any) (bool, error) {
	eq := reflect.DeepEqual(normalizeNumber(l), normalizeNumber(r))
	if op == OpNeq {
		return !eq, nil
	}
	return eq, nil
}
func (e equality) Indexable() bool        { return e.op != OpNeq }
func (equality) SelectivityHint() float64 { return 0.1 }

type ordering struct{ op string }

func (o ordering) Evaluate(op string, l, r any) (bool, error) {
	lf, lok := toFloat64(l)
	rf, rok := toFloat64(r)
	if lok && rok {
		return compareFloat(op, lf, rf), nil
	}
	lt, lok := l.(time.Time)
	rt, rok := r.(time.Time)
	if lok && rok {
		return compareTime(op, lt, rt), nil
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return compareString(op, ls, rs), nil
	}
	return false, fmt.Errorf("predicate: operator %q cannot compare %T and %T", op, l, r)
}
func (ordering) Indexable() bool        { return false }
func (ordering) SelectivityHint() float64 { return 0.3 }

type membership struct{}

func (membership) Evaluate(op string, l, r any) (bool, error) {
	rv := reflect.ValueOf(r)
	if rv.Kind() != reflect.Slice {
		return false, fmt.Errorf("predicate: %q right operand must be a list, got %T", OpIn, r)
	}
	ln := normalizeNumber(l)
	for i := 0; i < rv.Len(); i++ {
		if reflect.DeepEqual(normalizeNumber(rv.Index(i).Interface()), ln) {
			return true, nil
		}
	}
	return false, nil
}
func (membership) Indexable() bool        { return false }
func (membership) SelectivityHint() float64 { return 0.2 }

// Builtins returns the native comparison operators.
func Builtins() map[string]Predicate {
	return map[string]Predicate{
		OpEq:  equality{op: OpEq},
		OpNeq: equality{op: OpNeq},
		OpGt:  ordering{op: OpGt},
		OpGte: ordering{op: OpGte},
		OpLt:  ordering{op: OpLt},
		OpLte: ordering{op: OpLte},
		OpIn:  membership{},
	}
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

// normalizeNumber coerces integer/float kinds onto float64 so equality
// comparisons are not sensitive to which Go numeric type a literal arrived
// as (e.g. int64(40) == float64(40)).
func normalizeNumber(v any) any {
	if f, ok := toFloat64(v); ok {
		return f
	}
	return v
}

func compareFloat(op string, l, r float64) bool {
	switch op {
	case OpGt:
		return l > r
	case OpGte:
		return l >= r
	case OpLt:
		return l < r
	case OpLte:
		return l <= r
	default:
		return false
	}
}

func compareTime(op string, l, r time.Time) bool {
	switch op {
	case OpGt:
		return l.After(r)
	case OpGte:
		return l.After(r) || l.Equal(r)
	case OpLt:
		return l.Before(r)
	case OpLte:
		return l.Before(r) || l.Equal(r)
	default:
		return false
	}
}

func compareString(op string, l, r string) bool {
	switch op {
	case OpGt:
		return l > r
	case OpGte:
		return l >= r
	case OpLt:
		return l < r
	case OpLte:
		return l <= r
	default:
		return false
	}
}

// ScriptPredicate wraps a compiled goja expression as a custom predicate,
// for rule authors who need logic the native operators don't cover (e.g.
// business-specific thresholds combining several fields). The expression
// sees `l` and `r` as bound globals and must evaluate to a boolean.
type ScriptPredicate struct {
	program     *goja.Program
	indexable   bool
	selectivity float64
}

// NewScriptPredicate compiles expr once at registration time.
func NewScriptPredicate(expr string, indexable bool, selectivity float64) (*ScriptPredicate, error) {
	program, err := goja.Compile("predicate", expr, true)
	if err != nil {
		return nil, fmt.Errorf("predicate: compile script: %w", err)
	}
	return &ScriptPredicate{program: program, indexable: indexable, selectivity: selectivity}, nil
}

func (p *ScriptPredicate) Evaluate(op string, l, r any) (bool, error) {
	vm := goja.New()
	if err := vm.Set("op", op); err != nil {
		return false, err
	}
	if err := vm.Set("l", l); err != nil {
		return false, err
	}
	if err := vm.Set("r", r); err != nil {
		return false, err
	}
	result, err := vm.RunProgram(p.program)
	if err != nil {
		return false, fmt.Errorf("predicate: evaluate script: %w", err)
	}
	return result.ToBoolean(), nil
}

func (p *ScriptPredicate) Indexable() bool        { return p.indexable }
func (p *ScriptPredicate) SelectivityHint() float64 { return p.selectivity }
