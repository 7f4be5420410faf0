// Package server wires the engine's command surface onto an illustrative
// gorilla/mux HTTP front-end. It is glue over the core engine package, not
// part of it: embedders of the engine as a library never import this
// package.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/engine"
	engineerrors "github.com/reteforge/engine/infrastructure/errors"
	"github.com/reteforge/engine/infrastructure/logging"
	"github.com/reteforge/engine/infrastructure/metrics"
	"github.com/reteforge/engine/registry/tenant"
)

// Handler bundles the tenant registry and the dependencies every started
// tenant engine is configured with.
type Handler struct {
	Registry *tenant.Registry
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
}

// New constructs a Handler over a fresh tenant registry.
func New(logger *logging.Logger, m *metrics.Metrics) *Handler {
	return &Handler{Registry: tenant.New(), Logger: logger, Metrics: m}
}

// Router builds the mux.Router exposing the command surface.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/tenants/{key}", h.startTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}", h.stopTenant).Methods(http.MethodDelete)
	r.HandleFunc("/tenants/{key}/assert", h.assert).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}/modify", h.modify).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}/retract", h.retract).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}/run", h.run).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}/step", h.step).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}/reset", h.reset).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{key}/snapshot", h.snapshot).Methods(http.MethodGet)
	return r
}

type startTenantRequest struct {
	Network network.IR `json:"network"`
}

func (h *Handler) startTenant(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req startTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, engineerrors.InvalidFact(err.Error()))
		return
	}

	net, err := network.Build(req.Network)
	if err != nil {
		writeError(w, http.StatusBadRequest, engineerrors.InvalidFact(err.Error()))
		return
	}

	_, err = h.Registry.Start(key, engine.Config{
		Net:     net,
		Tenant:  key,
		Logger:  h.Logger,
		Metrics: h.Metrics,
	})
	if err != nil {
		writeError(w, http.StatusConflict, engineerrors.Wrap(engineerrors.CodeTenantNotFound, "start tenant failed", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tenant_key": key, "network_version": net.Version()})
}

func (h *Handler) stopTenant(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	h.Registry.Stop(key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	key := mux.Vars(r)["key"]
	e, ok := h.Registry.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, engineerrors.TenantNotFound(key))
		return nil, false
	}
	return e, true
}

type assertRequest struct {
	Facts []fact.Fact `json:"facts"`
	Batch *bool       `json:"batch"`
}

func (req assertRequest) options() engine.AssertOptions {
	opts := engine.DefaultAssertOptions()
	if req.Batch != nil {
		opts.Batch = *req.Batch
	}
	return opts
}

type modifyRequest struct {
	Retract []fact.ID   `json:"retract"`
	Facts   []fact.Fact `json:"facts"`
	Batch   *bool       `json:"batch"`
}

type runRequest struct {
	FireLimit int `json:"fire_limit"`
}

func (h *Handler) assert(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req assertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, engineerrors.InvalidFact(err.Error()))
		return
	}
	out, err := e.Assert(r.Context(), req.Facts, req.options())
	if err != nil {
		writeError(w, http.StatusBadRequest, asEngineError(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) modify(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req modifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, engineerrors.InvalidFact(err.Error()))
		return
	}
	opts := engine.DefaultAssertOptions()
	if req.Batch != nil {
		opts.Batch = *req.Batch
	}
	out, err := e.Modify(r.Context(), req.Retract, req.Facts, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, asEngineError(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) retract(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []fact.ID `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, engineerrors.InvalidFact(err.Error()))
		return
	}
	out, err := e.Retract(r.Context(), req.IDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, asEngineError(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req runRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	out, err := e.Run(r.Context(), engine.RunOptions{FireLimit: req.FireLimit})
	if err != nil {
		writeError(w, http.StatusBadRequest, asEngineError(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) step(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	out, err := e.Step(r.Context())
	if err != nil && engineerrors.IsCode(err, engineerrors.CodeAgendaEmpty) {
		writeJSON(w, http.StatusOK, out)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, asEngineError(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	e.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot(r.Context()))
}

func asEngineError(err error) *engineerrors.EngineError {
	if ee, ok := engineerrors.As(err); ok {
		return ee
	}
	return engineerrors.New(engineerrors.CodeInvalidFact, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err *engineerrors.EngineError) {
	writeJSON(w, status, map[string]any{"code": err.Code, "message": err.Message})
}
