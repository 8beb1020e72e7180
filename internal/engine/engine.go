// Package engine is the action protocol router. It validates a submitted
// action against the schema registry, persists the request as an immutable
// action record, dispatches to the handler bound to the action name, and
// attaches the handler's result to the stored record.
//
// The ordering invariant is persist-before-dispatch: once the record is
// created it is visible to concurrent reads (with a pending, result-less
// state) and survives caller disconnects, handler panics, and handler
// errors. Rejections happen strictly before the record exists and produce
// zero writes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/registry"
	"github.com/agora-sim/agora/internal/store"
	"github.com/agora-sim/agora/internal/telemetry"
)

// Action is a validated action as handed to a handler: the authenticated
// submitter, the action name, and the schema-checked parameters.
type Action struct {
	AgentID    string
	Name       string
	Parameters map[string]any
}

// Handler is the business logic bound to one action name. It receives the
// store controller so it can read and write any table, but it must not
// touch the action's own record; the engine owns that row.
type Handler func(ctx context.Context, act Action, db store.Controller) (model.ActionResult, error)

// Engine routes submitted actions through validate, persist, dispatch, and
// resolve. Safe for concurrent use; it holds no per-request state.
type Engine struct {
	registry *registry.Registry
	handlers map[string]Handler
	db       store.Controller
	logger   *slog.Logger

	submitted metric.Int64Counter
	rejected  metric.Int64Counter
	faulted   metric.Int64Counter
}

// New builds an Engine. Every descriptor in the registry must have a
// handler and vice versa; a mismatch is a startup error, not a request-time
// surprise.
func New(reg *registry.Registry, handlers map[string]Handler, db store.Controller, logger *slog.Logger) (*Engine, error) {
	for _, d := range reg.Descriptors() {
		if handlers[d.Name] == nil {
			return nil, fmt.Errorf("engine: action %q has no handler", d.Name)
		}
	}
	for name := range handlers {
		if _, err := reg.Resolve(name); err != nil {
			return nil, fmt.Errorf("engine: handler %q has no descriptor", name)
		}
	}

	e := &Engine{
		registry: reg,
		handlers: handlers,
		db:       db,
		logger:   logger,
	}

	meter := telemetry.Meter("agora.engine")
	e.submitted, _ = meter.Int64Counter("engine.actions.submitted")
	e.rejected, _ = meter.Int64Counter("engine.actions.rejected")
	e.faulted, _ = meter.Int64Counter("engine.actions.faulted")
	return e, nil
}

// Descriptors lists the registered action descriptors for discovery. The
// set is fixed for the process lifetime.
func (e *Engine) Descriptors() []registry.Descriptor {
	return e.registry.Descriptors()
}

// Submit runs one action through the full lifecycle and returns the
// handler's result verbatim. A result with IsError set is a domain error
// and still returns with a nil error; *Rejection and *Fault are the two
// failure classes callers must distinguish.
func (e *Engine) Submit(ctx context.Context, agentID string, req model.ActionRequest) (model.ActionResult, error) {
	attrs := metric.WithAttributes(attribute.String("action", req.Name))
	if e.submitted != nil {
		e.submitted.Add(ctx, 1, attrs)
	}

	params, err := e.registry.Validate(req.Name, req.Parameters)
	if err != nil {
		if e.rejected != nil {
			e.rejected.Add(ctx, 1, attrs)
		}
		e.logger.Info("action rejected", "agent_id", agentID, "action", req.Name, "error", err)
		return model.ActionResult{}, &Rejection{Reason: "invalid action", Err: err}
	}
	req.Parameters = params

	row, err := e.db.Actions().Create(ctx, store.Row[model.ActionData]{
		Data: model.ActionData{AgentID: agentID, Request: req},
	})
	if err != nil {
		if e.faulted != nil {
			e.faulted.Add(ctx, 1, attrs)
		}
		e.logger.Error("action persist failed", "agent_id", agentID, "action", req.Name, "error", err)
		return model.ActionResult{}, &Fault{Err: fmt.Errorf("persist action: %w", err)}
	}

	result, err := e.dispatch(ctx, Action{AgentID: agentID, Name: req.Name, Parameters: params})
	if err != nil {
		// The record stays pending: result remains null, no retry.
		if e.faulted != nil {
			e.faulted.Add(ctx, 1, attrs)
		}
		e.logger.Error("action handler faulted",
			"agent_id", agentID, "action", req.Name, "action_id", row.ID, "error", err)
		return model.ActionResult{}, &Fault{ActionID: row.ID, Err: err}
	}

	row.Data = row.Data.WithResult(result)
	if _, err := e.db.Actions().Update(ctx, row); err != nil {
		if e.faulted != nil {
			e.faulted.Add(ctx, 1, attrs)
		}
		e.logger.Error("action result attach failed",
			"agent_id", agentID, "action", req.Name, "action_id", row.ID, "error", err)
		return model.ActionResult{}, &Fault{ActionID: row.ID, Err: fmt.Errorf("attach result: %w", err)}
	}

	return result, nil
}

// dispatch invokes the handler with panic containment. A panicking handler
// becomes an error for this one action; other in-flight requests are
// unaffected.
func (e *Engine) dispatch(ctx context.Context, act Action) (result model.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic",
				"action", act.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return e.handlers[act.Name](ctx, act, e.db)
}
