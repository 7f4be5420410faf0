// Package engine implements the per-tenant command-dispatch loop tying
// together working memory, the RETE propagation algorithm, the agenda,
// refraction, the action executor, the memory manager, and the tracer.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reteforge/engine/domain/activation"
	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/engine/agenda"
	"github.com/reteforge/engine/engine/executor"
	"github.com/reteforge/engine/engine/memmgr"
	"github.com/reteforge/engine/engine/memory"
	"github.com/reteforge/engine/engine/refraction"
	"github.com/reteforge/engine/engine/rete"
	"github.com/reteforge/engine/engine/tracer"
	engineerrors "github.com/reteforge/engine/infrastructure/errors"
	"github.com/reteforge/engine/infrastructure/metrics"
	"github.com/reteforge/engine/registry/predicate"
)

// Engine is a serialized, single-writer RETE engine instance for one
// tenant. All exported methods take a context.Context first argument for
// deadline/cancellation propagation and are internally serialized by a
// single mutex, the Go analogue of the spec's single-writer process
// model.
type Engine struct {
	mu sync.Mutex

	net    *network.Network
	tenant string

	wm              *memory.WorkingMemory
	ag              *agenda.Agenda
	refractionStore refraction.Store
	refractionOpts  refraction.Options
	seq             *rete.Sequencer
	predicates      *predicate.Registry
	exec            *executor.Executor
	trace           *tracer.Tracer
	mem             *memmgr.Manager
	metrics         *metrics.Metrics

	fireLimit int
	now       func() time.Time
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Net == nil {
		return nil, fmt.Errorf("engine: Config.Net is required")
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		net:             cfg.Net,
		tenant:          cfg.Tenant,
		wm:              memory.New(cfg.Net),
		ag:              agenda.New(cfg.AgendaPolicy),
		refractionStore: cfg.RefractionPolicy.NewStore(),
		refractionOpts:  cfg.RefractionOptions,
		seq:             &rete.Sequencer{},
		predicates:      cfg.Predicates,
		trace:           cfg.Tracer,
		mem:             memmgr.New(cfg.Memory, 1),
		metrics:         cfg.Metrics,
		fireLimit:       cfg.FireLimit,
		now:             cfg.Now,
	}
	e.exec = &executor.Executor{
		Callback:    cfg.Callback,
		Calculators: cfg.Calculators,
		Logger:      cfg.Logger,
		Now:         cfg.Now,
		Tenant:      cfg.Tenant,
	}
	return e, nil
}

func (e *Engine) rete() *rete.Context {
	return &rete.Context{
		Net:        e.net,
		WM:         e.wm,
		Agenda:     e.ag,
		Refraction: e.refractionStore,
		RefractOpt: e.refractionOpts,
		Predicates: e.predicates,
		Seq:        e.seq,
		Tracer:     e.trace,
		Now:        e.now,
	}
}

// Outputs is the result shape shared by assert/modify/retract/run/step.
type Outputs struct {
	Asserted    []fact.ID
	Retracted   []fact.ID
	Derived     []fact.Fact
	Activations []activation.Summary
	Fired       int
	Errors      []*engineerrors.EngineError
}

// Assert validates and inserts facts into working memory, propagating
// matches through the network. Validation failure on any fact rejects
// the whole batch; no partial assertion occurs.
func (e *Engine) Assert(ctx context.Context, facts []fact.Fact, opts AssertOptions) (*Outputs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range facts {
		if !f.Valid() {
			return nil, engineerrors.InvalidFact(fmt.Sprintf("fact missing id or type: %+v", f))
		}
	}

	out := &Outputs{}
	if err := e.assertLocked(ctx, facts, out); err != nil {
		return nil, err
	}

	if !opts.Batch {
		if err := e.runLocked(ctx, RunOptions{}, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// assertLocked inserts and propagates facts; callers must hold e.mu.
func (e *Engine) assertLocked(ctx context.Context, facts []fact.Fact, out *Outputs) error {
	c := e.rete()
	e.ag.ClearRecent()

	for _, f := range facts {
		if err := e.wm.Insert(f); err != nil {
			continue
		}
		out.Asserted = append(out.Asserted, f.ID)
		e.trace.Assert(f)
		if err := rete.PropagateAssert(c, f); err != nil {
			out.Errors = append(out.Errors, engineerrors.Wrap(engineerrors.CodeInvalidFact, "propagation failed", err))
		}
	}

	for _, act := range e.ag.Recent() {
		out.Activations = append(out.Activations, activation.ToSummary(act))
	}
	e.ag.ClearRecent()

	e.checkMemory(out)
	return nil
}

// Modify retracts ids and asserts facts as a single atomic operation;
// Outputs carries the retracted ids plus the assert phase's results.
func (e *Engine) Modify(ctx context.Context, ids []fact.ID, facts []fact.Fact, opts AssertOptions) (*Outputs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range facts {
		if !f.Valid() {
			return nil, engineerrors.InvalidFact(fmt.Sprintf("fact missing id or type: %+v", f))
		}
	}

	out := &Outputs{}
	e.retractLocked(ids, out)
	if err := e.assertLocked(ctx, facts, out); err != nil {
		return nil, err
	}

	if !opts.Batch {
		if err := e.runLocked(ctx, RunOptions{}, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Retract removes ids from working memory and cascades the removal
// through the network. Unknown ids are silently ignored.
func (e *Engine) Retract(ctx context.Context, ids []fact.ID) (*Outputs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &Outputs{}
	e.retractLocked(ids, out)
	return out, nil
}

func (e *Engine) retractLocked(ids []fact.ID, out *Outputs) {
	c := e.rete()
	for _, id := range ids {
		f, ok := e.wm.Remove(id)
		if !ok {
			continue
		}
		out.Retracted = append(out.Retracted, id)
		e.trace.Retract(f)
		rete.PropagateRetract(c, f)
	}
}

// Run fires activations in agenda order up to the engine's (or opts')
// fire limit. Actions executed by a fired activation may emit derived
// facts that re-enter propagation within the same call.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Outputs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &Outputs{}
	err := e.runLocked(ctx, opts, out)
	return out, err
}

func (e *Engine) runLocked(ctx context.Context, opts RunOptions, out *Outputs) error {
	limit := e.fireLimit
	if opts.FireLimit > 0 {
		limit = opts.FireLimit
	}

	for out.Fired < limit {
		if err := ctx.Err(); err != nil {
			return err
		}

		act, ok := e.ag.Pop()
		if !ok {
			break
		}

		now := e.now()
		if e.refractionStore.WouldRefract(act.Key(), now, e.refractionOpts) {
			e.trace.Refraction(act.Key())
			continue
		}

		e.fireLocked(ctx, act, out)
		e.refractionStore.Record(act.Key(), now, e.refractionOpts)
	}

	e.checkMemory(out)
	return nil
}

// Step fires exactly one activation (skipping, but still consuming this
// call on, any number of refracted activations ahead of it), or reports
// agenda_empty.
func (e *Engine) Step(ctx context.Context) (*Outputs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &Outputs{}
	for {
		act, ok := e.ag.Pop()
		if !ok {
			return out, engineerrors.AgendaEmpty()
		}
		now := e.now()
		if e.refractionStore.WouldRefract(act.Key(), now, e.refractionOpts) {
			e.trace.Refraction(act.Key())
			continue
		}
		e.fireLocked(ctx, act, out)
		e.refractionStore.Record(act.Key(), now, e.refractionOpts)
		break
	}

	e.checkMemory(out)
	return out, nil
}

// fireLocked executes act's production actions and asserts any derived
// facts back into working memory as a sub-batch. Callers must hold e.mu.
func (e *Engine) fireLocked(ctx context.Context, act activation.Activation, out *Outputs) {
	prod, ok := findProduction(e.net, act.ProductionID)
	if !ok {
		out.Errors = append(out.Errors, engineerrors.MissingProduction(act.ProductionID))
		return
	}

	e.trace.Fire(act)
	res := e.exec.Execute(ctx, prod, act)
	out.Fired++
	if e.metrics != nil {
		e.metrics.RecordFire(e.tenant, act.ProductionID)
	}

	for _, eerr := range res.Errors {
		out.Errors = append(out.Errors, eerr)
		if e.metrics != nil {
			e.metrics.RecordActionError(e.tenant, string(eerr.Code))
		}
	}

	if len(res.Emitted) > 0 {
		e.ag.ClearRecent()
		c := e.rete()
		for _, f := range res.Emitted {
			if err := e.wm.Insert(f); err != nil {
				continue
			}
			out.Derived = append(out.Derived, f)
			e.trace.Derive(f)
			if err := rete.PropagateAssert(c, f); err != nil {
				out.Errors = append(out.Errors, engineerrors.Wrap(engineerrors.CodeInvalidFact, "derived fact propagation failed", err))
			}
		}
		for _, newAct := range e.ag.Recent() {
			out.Activations = append(out.Activations, activation.ToSummary(newAct))
		}
		e.ag.ClearRecent()
	}
}

// findProduction locates the production node whose business-level
// ProductionID matches id. Productions are keyed by network.NodeID in the
// compiled network, so this walks the (typically small) production set
// once per fire.
func findProduction(net *network.Network, productionID string) (network.ProductionNode, bool) {
	for _, p := range net.AllProductions() {
		if p.ProductionID == productionID {
			return p, true
		}
	}
	return network.ProductionNode{}, false
}

func (e *Engine) checkMemory(out *Outputs) {
	if e.metrics != nil {
		e.metrics.SetAgendaDepth(e.tenant, e.ag.Size())
		e.metrics.SetWorkingMemorySize(e.tenant, e.wm.Size())
	}
	if !e.mem.Tick() {
		return
	}
	_, exceeded := e.mem.Check(e.wm, e.ag, e.refractionStore, func(id fact.ID) {
		f, ok := e.wm.Remove(id)
		if !ok {
			return
		}
		e.trace.Retract(f)
		rete.PropagateRetract(e.rete(), f)
		out.Retracted = append(out.Retracted, id)
	})
	if exceeded {
		out.Errors = append(out.Errors, engineerrors.MemoryLimitExceeded(0, 0))
	}
}

// Reset clears working memory, every alpha/beta memory, the agenda, the
// refraction store, and tracer events, preserving the network and policy
// choices.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wm.Reset()
	e.ag.Clear()
	e.refractionStore.Reset()
	e.trace.Reset()
}

// Snapshot returns a data-only representation of engine state.
type Snapshot struct {
	NetworkVersion string
	Facts          map[fact.ID]fact.Fact
	Agenda         []activation.Summary
	Refraction     any
}

// Snapshot returns the current engine state for inspection/persistence by
// the caller (persistence itself is out of scope for the core engine).
func (e *Engine) Snapshot(ctx context.Context) *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	agendaSnapshot := e.ag.Snapshot()
	summaries := make([]activation.Summary, len(agendaSnapshot))
	for i, act := range agendaSnapshot {
		summaries[i] = activation.ToSummary(act)
	}

	return &Snapshot{
		NetworkVersion: e.net.Version(),
		Facts:          e.wm.All(),
		Agenda:         summaries,
		Refraction:     e.refractionStore.Snapshot(),
	}
}
