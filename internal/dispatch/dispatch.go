// Package dispatch implements the Handler Dispatcher (C11): the
// pipeline every decoded frame passes through between C10's inbound
// loop and the mutators/store that do the actual work.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/idempotency"
	"github.com/pmsync/pmsync/internal/metrics"
	"github.com/pmsync/pmsync/internal/mutate"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/reqctx"
	"github.com/pmsync/pmsync/internal/resilience"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
	"github.com/pmsync/pmsync/internal/wsregistry"
)

// mutationTypes identifies which message types go through the
// idempotency cache and trigger an activity-log broadcast; reads
// (GetWorkItems) and subscription control frames do not.
var mutationTypes = map[wire.MessageType]bool{
	wire.TypeCreateWorkItem:   true,
	wire.TypeUpdateWorkItem:   true,
	wire.TypeCreateSprint:     true,
	wire.TypeUpdateSprint:     true,
	wire.TypeCreateComment:    true,
	wire.TypeCreateDependency: true,
	wire.TypeCreateTimeEntry:  true,
}

// Dispatcher wires every C12 mutator, the read-path store, the
// registry's subscription control, the idempotency cache, and the
// read-path resilience wrappers into one entry point per frame.
type Dispatcher struct {
	WorkItems   *mutate.WorkItemMutator
	Sprints     *mutate.SprintMutator
	Comments    *mutate.CommentMutator
	Deps        *mutate.DependencyMutator
	TimeEntries *mutate.TimeEntryMutator
	Store       *store.Store
	Registry    *wsregistry.Registry
	Idempotency *idempotency.Store
	Breaker     *resilience.Breaker
	Retrier     *resilience.Retrier
	Metrics     *metrics.Recorder
	Timeout     time.Duration
	Log         zerolog.Logger
}

// Dispatch runs one request end to end: idempotency short-circuit,
// panic-isolated handler execution with a timeout, idempotency
// completion, and error classification. The returned envelope always
// carries the request's message_id.
func (d *Dispatcher) Dispatch(ctx context.Context, rc reqctx.Context, tenantID string, env wire.Envelope) wire.Envelope {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stopTimer := func() {}
	if d.Metrics != nil {
		stopTimer = d.Metrics.StartTimer(string(env.Type))
	}
	defer stopTimer()

	isMutation := mutationTypes[env.Type]

	if isMutation && env.MessageID != "" {
		if replay, ok := d.tryReplay(ctx, env.MessageID); ok {
			return replay
		}
		acquired, err := d.Idempotency.Acquire(ctx, env.MessageID, string(env.Type))
		if err != nil {
			d.Log.Warn().Err(err).Str("correlation_id", rc.CorrelationID).
				Msg("idempotency acquire failed, proceeding without cache protection")
		} else if !acquired {
			if replay, ok := d.tryReplay(ctx, env.MessageID); ok {
				return replay
			}
			return d.errorEnvelope(env.MessageID, pmerr.InternalErr(errors.New("request already in progress")))
		}
	}

	result := d.runIsolated(ctx, rc, tenantID, env)

	if isMutation && env.MessageID != "" && result.Type != wire.TypeError {
		if frame, err := result.MarshalFrame(); err == nil {
			if err := d.Idempotency.Complete(ctx, env.MessageID, frame); err != nil {
				d.Log.Warn().Err(err).Str("correlation_id", rc.CorrelationID).
					Msg("failed to persist idempotency result")
			}
		}
	}
	return result
}

func (d *Dispatcher) tryReplay(ctx context.Context, messageID string) (wire.Envelope, bool) {
	cached, hit, err := d.Idempotency.Find(ctx, messageID)
	if err != nil {
		d.Log.Warn().Err(err).Str("message_id", messageID).Msg("idempotency lookup failed, proceeding as fresh request")
		return wire.Envelope{}, false
	}
	if !hit {
		return wire.Envelope{}, false
	}
	replay, err := wire.UnmarshalFrame(cached)
	if err != nil {
		return wire.Envelope{}, false
	}
	return replay, true
}

// runIsolated spawns the handler into its own goroutine so a panic
// becomes a generic INTERNAL_ERROR frame instead of killing the
// connection actor, and races it against the context deadline.
func (d *Dispatcher) runIsolated(ctx context.Context, rc reqctx.Context, tenantID string, env wire.Envelope) wire.Envelope {
	resultCh := make(chan wire.Envelope, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.Log.Error().Interface("panic", r).Str("correlation_id", rc.CorrelationID).
					Str("type", string(env.Type)).Msg("handler panicked")
				resultCh <- d.errorEnvelope(env.MessageID, pmerr.InternalErr(fmt.Errorf("panic: %v", r)))
			}
		}()
		resultCh <- d.route(ctx, rc, tenantID, env)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return d.errorEnvelope(env.MessageID, pmerr.Wrap(pmerr.Internal, ctx.Err(), "handler timed out"))
	}
}

func (d *Dispatcher) route(ctx context.Context, rc reqctx.Context, tenantID string, env wire.Envelope) wire.Envelope {
	userID := rc.UserID
	connID := rc.ConnectionID

	switch env.Type {
	case wire.TypeSubscribe:
		var req wire.SubscribePayload
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed Subscribe payload"))
		}
		d.Registry.Subscribe(connID, req.ProjectIDs, req.SprintIDs, nil)
		return wire.EmptyEnvelope(env.MessageID, wire.TypeAck)

	case wire.TypeUnsubscribe:
		var req wire.UnsubscribePayload
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed Unsubscribe payload"))
		}
		d.Registry.Unsubscribe(connID, req.ProjectIDs, req.SprintIDs, nil)
		return wire.EmptyEnvelope(env.MessageID, wire.TypeAck)

	case wire.TypeGetWorkItems:
		return d.handleGetWorkItems(ctx, env)

	case wire.TypeCreateWorkItem:
		var req wire.CreateWorkItemRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed CreateWorkItem payload"))
		}
		created, err := d.WorkItems.Create(ctx, tenantID, userID, req)
		if err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return d.buildResponse(env.MessageID, wire.TypeWorkItemCreated, toWorkItemPayload(created))

	case wire.TypeUpdateWorkItem:
		var req wire.UpdateWorkItemRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed UpdateWorkItem payload"))
		}
		updated, err := d.WorkItems.Update(ctx, tenantID, userID, req)
		if err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return d.buildResponse(env.MessageID, wire.TypeWorkItemUpdated, toWorkItemPayload(updated))

	case wire.TypeCreateSprint:
		var req wire.CreateSprintRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed CreateSprint payload"))
		}
		created, err := d.Sprints.Create(ctx, tenantID, userID, req)
		if err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return d.buildResponse(env.MessageID, wire.TypeSprintCreated, toSprintPayload(created))

	case wire.TypeUpdateSprint:
		var req wire.UpdateSprintRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed UpdateSprint payload"))
		}
		updated, err := d.Sprints.Update(ctx, tenantID, userID, req)
		if err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return d.buildResponse(env.MessageID, wire.TypeSprintUpdated, toSprintPayload(updated))

	case wire.TypeCreateComment:
		var req wire.CreateCommentRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed CreateComment payload"))
		}
		created, err := d.Comments.Create(ctx, tenantID, userID, req)
		if err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return d.buildResponse(env.MessageID, wire.TypeCommentCreated, wire.CommentPayload{
			ID: created.ID, WorkItemID: created.WorkItemID, ProjectID: created.ProjectID,
			AuthorID: created.AuthorID, Body: created.Body,
		})

	case wire.TypeCreateDependency:
		var req wire.CreateDependencyRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed CreateDependency payload"))
		}
		if _, err := d.Deps.Create(ctx, tenantID, userID, req); err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return wire.EmptyEnvelope(env.MessageID, wire.TypeAck)

	case wire.TypeCreateTimeEntry:
		var req wire.CreateTimeEntryRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed CreateTimeEntry payload"))
		}
		if _, err := d.TimeEntries.Create(ctx, tenantID, userID, req); err != nil {
			return d.errorEnvelope(env.MessageID, err)
		}
		return wire.EmptyEnvelope(env.MessageID, wire.TypeAck)

	default:
		return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr(fmt.Sprintf("unknown message type %q", env.Type)))
	}
}

// handleGetWorkItems is the one read path the dispatcher wraps with
// C3/C4 (circuit breaker + retry), per the spec's "handler uses C3/C4
// wrappers around reads".
func (d *Dispatcher) handleGetWorkItems(ctx context.Context, env wire.Envelope) wire.Envelope {
	var req wire.GetWorkItemsRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return d.errorEnvelope(env.MessageID, pmerr.InvalidMessageErr("malformed GetWorkItems payload"))
	}

	var items []domain.WorkItem
	err := d.Breaker.Do(ctx, func(ctx context.Context) error {
		return d.Retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			items, err = d.Store.WorkItems.ListByProject(ctx, req.ProjectID)
			if err != nil {
				return resilience.Transient(err)
			}
			return nil
		})
	})
	if err != nil {
		return d.errorEnvelope(env.MessageID, err)
	}

	payloads := make([]wire.WorkItemPayload, len(items))
	for i, w := range items {
		payloads[i] = toWorkItemPayload(w)
	}
	return d.buildResponse(env.MessageID, wire.TypeGetWorkItems, wire.GetWorkItemsResponse{Items: payloads})
}

func (d *Dispatcher) buildResponse(messageID string, msgType wire.MessageType, payload any) wire.Envelope {
	env, err := wire.NewEnvelope(messageID, msgType, payload)
	if err != nil {
		return d.errorEnvelope(messageID, pmerr.InternalErr(err))
	}
	return env
}

// errorEnvelope classifies err against the closed error-kind set (§7)
// and never leaks internal details (SQL text, file paths, panics) onto
// the wire — only Kind, a generic message, and an optional field name
// cross the boundary.
func (d *Dispatcher) errorEnvelope(messageID string, err error) wire.Envelope {
	classified, ok := pmerr.As(err)
	if !ok {
		classified = pmerr.InternalErr(err)
	}
	if d.Metrics != nil {
		d.Metrics.RecordError(string(classified.Kind))
	}

	payload := wire.ErrorPayload{Code: string(classified.Kind), Message: classified.Message}
	if classified.Field != "" {
		payload.Field = &classified.Field
	}
	env, _ := wire.NewEnvelope(messageID, wire.TypeError, payload)
	return env
}

func toWorkItemPayload(w domain.WorkItem) wire.WorkItemPayload {
	return wire.WorkItemPayload{
		ID: w.ID, ProjectID: w.ProjectID, ItemType: string(w.ItemType), ParentID: w.ParentID,
		Title: w.Title, Description: w.Description, Status: w.Status, Priority: w.Priority,
		AssigneeID: w.AssigneeID, SprintID: w.SprintID, StoryPoints: w.StoryPoints,
		ItemNumber: w.ItemNumber, Position: w.Position, Version: w.Version,
	}
}

func toSprintPayload(s domain.Sprint) wire.SprintPayload {
	return wire.SprintPayload{
		ID: s.ID, ProjectID: s.ProjectID, Name: s.Name, Goal: s.Goal,
		StartDate: s.StartDate, EndDate: s.EndDate, Status: string(s.Status), Version: s.Version,
	}
}
