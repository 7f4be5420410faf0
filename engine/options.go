package engine

import (
	"time"

	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/engine/agenda"
	"github.com/reteforge/engine/engine/executor"
	"github.com/reteforge/engine/engine/memmgr"
	"github.com/reteforge/engine/engine/refraction"
	"github.com/reteforge/engine/engine/tracer"
	"github.com/reteforge/engine/infrastructure/logging"
	"github.com/reteforge/engine/infrastructure/metrics"
	"github.com/reteforge/engine/registry/calculator"
	"github.com/reteforge/engine/registry/predicate"
)

// DefaultFireLimit is the non-negotiable per-run() termination bound when
// a Config does not override it.
const DefaultFireLimit = 1000

// Config constructs a single tenant Engine. Net is the only required
// field; every other field defaults to the built-in, spec-mandated
// behavior.
type Config struct {
	Net               *network.Network
	Tenant            string
	FireLimit         int
	AgendaPolicy      agenda.Policy
	RefractionPolicy  refraction.Policy
	RefractionOptions refraction.Options
	Predicates        *predicate.Registry
	Calculators       *calculator.Registry
	Callback          executor.Callback
	Logger            *logging.Logger
	Tracer            *tracer.Tracer
	Memory            memmgr.Options
	Metrics           *metrics.Metrics
	Now               func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FireLimit <= 0 {
		c.FireLimit = DefaultFireLimit
	}
	if c.AgendaPolicy == nil {
		c.AgendaPolicy = agenda.Builtins()[agenda.TagDefault]
	}
	if c.RefractionPolicy == nil {
		c.RefractionPolicy = refraction.Builtins()[refraction.TagDefault]
	}
	if c.Predicates == nil {
		c.Predicates = predicate.Default
	}
	if c.Calculators == nil {
		c.Calculators = calculator.Default
	}
	if c.Tracer == nil {
		c.Tracer = tracer.Disabled()
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// AssertOptions configures a single assert/modify call.
type AssertOptions struct {
	// Batch defers firing: when true (the default), assert/modify only
	// updates working memory, propagation, and the agenda; activations
	// are not fired until a subsequent run()/step().
	Batch bool
}

// DefaultAssertOptions is batch: true, per spec section 4.1.
func DefaultAssertOptions() AssertOptions {
	return AssertOptions{Batch: true}
}

// RunOptions configures a single run() call.
type RunOptions struct {
	// FireLimit overrides the engine's configured fire limit for this call
	// only, when positive.
	FireLimit int
}
