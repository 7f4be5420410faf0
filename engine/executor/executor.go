// Package executor runs a fired activation's right-hand side: binding
// substitution, fact emission, external callbacks, and log side effects.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reteforge/engine/domain/activation"
	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	engineerrors "github.com/reteforge/engine/infrastructure/errors"
	"github.com/reteforge/engine/infrastructure/logging"
	"github.com/reteforge/engine/pkg/ids"
	"github.com/reteforge/engine/registry/calculator"
)

// unbound is the sentinel substituted for a missing binding, per spec
// section 4.5. It is data carried into emitted facts and outputs, never
// used for control flow.
type unbound struct {
	Name string
}

// Callback invokes a user-registered `call` action target. module/function
// identify the target; args are the action's literal args with bindings
// already substituted.
type Callback func(ctx context.Context, module, function string, args []any) (any, error)

// SideEffect records a non-emit action's observable result, returned to the
// caller as part of a command's Outputs.
type SideEffect struct {
	Kind         string
	ProductionID string
	Level        string
	Message      string
	Module       string
	Function     string
	Result       any
}

// Result is the outcome of executing one activation's action list.
type Result struct {
	Emitted     []fact.Fact
	SideEffects []SideEffect
	Errors      []*engineerrors.EngineError
}

// Executor runs activation action lists against a configured callback
// dispatcher and logger.
type Executor struct {
	Callback    Callback
	Calculators *calculator.Registry
	Logger      *logging.Logger
	Now         func() time.Time
	Tenant      string
}

func (e *Executor) calculators() *calculator.Registry {
	if e.Calculators != nil {
		return e.Calculators
	}
	return calculator.Default
}

// Execute walks prod's action list in order for act, substituting bindings
// from act.Token into each action's parameters. Errors in one action do
// not prevent subsequent actions from running, matching the spec's
// per-action isolation.
func (e *Executor) Execute(ctx context.Context, prod network.ProductionNode, act activation.Activation) Result {
	var res Result

	for _, a := range prod.Actions {
		switch a.Kind {
		case network.ActionEmit:
			e.execEmit(&res, a, act)
		case network.ActionCall:
			e.execCall(ctx, &res, a, act)
		case network.ActionLog:
			e.execLog(&res, a, act)
		default:
			res.Errors = append(res.Errors, engineerrors.UnknownAction(string(a.Kind)))
		}
	}

	return res
}

func (e *Executor) execEmit(res *Result, a network.Action, act activation.Activation) {
	defer func() {
		if r := recover(); r != nil {
			res.Errors = append(res.Errors, engineerrors.ActionException(act.ProductionID, fmt.Errorf("emit panicked: %v", r)))
		}
	}()

	attrs := make(map[string]fact.Value, len(a.Template))
	for k, v := range a.Template {
		val, err := substitute(v, act.Token.Bindings, e.calculators())
		if err != nil {
			res.Errors = append(res.Errors, engineerrors.ActionException(act.ProductionID, err))
			continue
		}
		attrs[k] = val
	}

	f := fact.Fact{
		ID:         ids.NewFactID(),
		Type:       a.FactType,
		Attributes: attrs,
		DerivedFrom: &fact.Provenance{
			ProductionID:   act.ProductionID,
			TokenSignature: act.Token.Signature(),
			ParentFactIDs:  append([]fact.ID(nil), act.Token.FactIDs...),
			DerivedAt:      e.now(),
		},
	}
	res.Emitted = append(res.Emitted, f)
}

func (e *Executor) execCall(ctx context.Context, res *Result, a network.Action, act activation.Activation) {
	if e.Callback == nil {
		res.Errors = append(res.Errors, engineerrors.CallbackError(a.Module, a.Function, fmt.Errorf("no callback dispatcher configured")))
		return
	}

	args := make([]any, len(a.Args))
	for i, arg := range a.Args {
		val, err := substitute(arg, act.Token.Bindings, e.calculators())
		if err != nil {
			res.Errors = append(res.Errors, engineerrors.ActionException(act.ProductionID, err))
			return
		}
		args[i] = val
	}

	result, err := e.safeCall(ctx, a.Module, a.Function, args)
	if err != nil {
		res.Errors = append(res.Errors, engineerrors.CallbackError(a.Module, a.Function, err))
		return
	}

	res.SideEffects = append(res.SideEffects, SideEffect{
		Kind:         "call",
		ProductionID: act.ProductionID,
		Module:       a.Module,
		Function:     a.Function,
		Result:       result,
	})
}

// safeCall isolates a panicking callback from corrupting the action list's
// remaining execution, converting it into a callback_error like any other
// failure.
func (e *Executor) safeCall(ctx context.Context, module, function string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return e.Callback(ctx, module, function, args)
}

func (e *Executor) execLog(res *Result, a network.Action, act activation.Activation) {
	if e.Logger != nil {
		e.Logger.WithFields(map[string]any{
			"tenant":        e.Tenant,
			"production_id": act.ProductionID,
			"bindings":      act.Token.Bindings,
			"fact_ids":      act.Token.FactIDs,
		}).Log(logLevel(a.Level), a.Message)
	}
	res.SideEffects = append(res.SideEffects, SideEffect{
		Kind:         "log",
		ProductionID: act.ProductionID,
		Level:        a.Level,
		Message:      a.Message,
	})
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// substitute performs shallow binding substitution over a template value:
// maps and slices are walked, a {binding, name} placeholder (encoded here
// as a map[string]any{"binding": name}) is replaced by its bound value or
// an unbound sentinel if missing, and a {calc, args} placeholder (encoded
// as map[string]any{"calc": name, "args": [...]}) is evaluated against
// the calculator registry after its own arguments are substituted.
func substitute(v any, bindings map[string]fact.Value, calculators *calculator.Registry) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if name, ok := bindingName(t); ok {
			if val, ok := bindings[name]; ok {
				return val, nil
			}
			return unbound{Name: name}, nil
		}
		if name, rawArgs, ok := calcCall(t); ok {
			return evalCalc(name, rawArgs, bindings, calculators)
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			sub, err := substitute(val, bindings, calculators)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			sub, err := substitute(val, bindings, calculators)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

func calcCall(m map[string]any) (name string, args []any, ok bool) {
	if len(m) != 2 {
		return "", nil, false
	}
	rawName, hasName := m["calc"]
	rawArgs, hasArgs := m["args"]
	if !hasName || !hasArgs {
		return "", nil, false
	}
	name, ok = rawName.(string)
	if !ok {
		return "", nil, false
	}
	args, ok = rawArgs.([]any)
	return name, args, ok
}

func evalCalc(name string, rawArgs []any, bindings map[string]fact.Value, calculators *calculator.Registry) (any, error) {
	calc, ok := calculators.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("calculator: unknown function %q", name)
	}
	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		val, err := substitute(a, bindings, calculators)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	result, err := calc.Evaluate(args)
	if err != nil {
		return nil, fmt.Errorf("calculator: %s: %w", name, err)
	}
	return result, nil
}

func logLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

func bindingName(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m["binding"]
	if !ok {
		return "", false
	}
	s, ok := name.(string)
	return s, ok
}
