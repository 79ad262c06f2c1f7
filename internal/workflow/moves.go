package workflow

import (
	"context"
	"fmt"

	"reqflow/internal/audit"
	"reqflow/internal/events"
	"reqflow/internal/notifications"
	"reqflow/internal/outbox"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
)

// TransitionInput changes a request's status and optionally its department.
// Status and Department are reference keys; an empty Department keeps the
// current one.
type TransitionInput struct {
	Status     string
	Department string
	Comment    string
	Actor      string
}

// move is one state change applied to a loaded request.
type move struct {
	dept     string
	status   string
	finalize bool
	comment  string
	actor    string
	needID   int64
	action   audit.Action
	// quiet skips the audit record and event so need operations can
	// describe the change with their own.
	quiet bool
}

// applyMove updates req, appends exactly one history entry and records the
// audit entry, notification intent and event the move implies. It returns
// the department key the request left.
func (e *Engine) applyMove(ctx context.Context, tx *store.Tx, c *change, req *store.Request, m move) (string, error) {
	now := e.timestamp()
	before := e.positionOf(req)
	prevDept := e.catalog.DeptKey(req.CurrentDeptID)
	fromDept, fromStatus := req.CurrentDeptID, req.StatusID

	req.CurrentDeptID = e.catalog.DeptID(m.dept)
	req.StatusID = e.catalog.StatusID(m.status)
	if m.finalize {
		req.StatusID = e.catalog.StatusID(refdata.StatusCompleted)
		req.Finalized = true
		req.FinalizedAt = &now
	}
	req.UpdatedAt = now
	if err := tx.UpdateRequest(ctx, req); err != nil {
		return "", err
	}
	if err := tx.AppendHistory(ctx, &store.HistoryEntry{
		RequestID:    req.ID,
		FromDeptID:   fromDept,
		ToDeptID:     req.CurrentDeptID,
		FromStatusID: fromStatus,
		ToStatusID:   req.StatusID,
		NeedID:       m.needID,
		Comment:      m.comment,
		Actor:        m.actor,
		CreatedAt:    now,
	}); err != nil {
		return "", err
	}

	statusKey := e.catalog.StatusKey(req.StatusID)
	if !m.quiet {
		action := m.action
		if action == "" {
			switch {
			case m.finalize:
				action = audit.ActionFinalizeRequest
			case fromDept != req.CurrentDeptID:
				action = audit.ActionMoveDepartment
			default:
				action = audit.ActionChangeStatus
			}
		}
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       m.actor,
			Action:      action,
			Description: m.comment,
			Before:      before,
			After:       e.positionOf(req),
		}); err != nil {
			return "", err
		}
		kind := events.KindRequestUpdated
		if m.finalize {
			kind = events.KindRequestFinalized
		}
		c.events = append(c.events, events.Event{
			Kind:           kind,
			RequestID:      req.ID,
			Number:         req.Number,
			Department:     m.dept,
			PrevDepartment: prevDept,
			Status:         statusKey,
			Actor:          m.actor,
			Comment:        m.comment,
			OccurredAt:     now,
		})
	}

	if fromDept != req.CurrentDeptID || m.finalize {
		notifyDept := m.dept
		if m.finalize {
			notifyDept = refdata.DeptShipping
		}
		if err := e.enqueueNotification(ctx, tx, c, req, notifyDept, m.comment, m.actor); err != nil {
			return "", err
		}
	}
	c.request = req
	dept := m.dept
	c.metricFn = append(c.metricFn, func() { e.metrics.Transition(dept, statusKey) })
	return prevDept, nil
}

// enqueueNotification writes an outbox intent when dept is one of the
// departments that are notified on arrival.
func (e *Engine) enqueueNotification(ctx context.Context, tx *store.Tx, c *change, req *store.Request, dept, comment, actor string) error {
	var event notifications.Event
	switch dept {
	case refdata.DeptWarehouse:
		event = notifications.EventSentToWarehouse
	case refdata.DeptShipping:
		event = notifications.EventSentToShipping
	default:
		return nil
	}
	payload := notifications.Payload{
		notifications.KeyNumber:      req.Number,
		notifications.KeyRequester:   req.Requester,
		notifications.KeyMaterial:    req.MaterialName,
		notifications.KeyLot:         req.Lot,
		notifications.KeySupplier:    req.Supplier,
		notifications.KeyArticleCode: req.ArticleCode,
		notifications.KeyUrgency:     urgencyKey(e, req.UrgencyID),
		notifications.KeyStatus:      e.catalog.StatusKey(req.StatusID),
		notifications.KeyComment:     comment,
		notifications.KeyActor:       actor,
	}
	msg, err := outbox.NewMessage(event, req.ID, payload, e.timestamp())
	if err != nil {
		return err
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return err
	}
	c.outbox++
	return nil
}

func (e *Engine) loadMutable(ctx context.Context, tx *store.Tx, op string, id int64) (*store.Request, error) {
	req, err := tx.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Finalized {
		return nil, wrap(ErrInvalidTransition, op, fmt.Sprintf("request %s is finalized", req.Number), nil)
	}
	return req, nil
}

func (e *Engine) deptName(id int64) string {
	if d, ok := e.catalog.DepartmentByID(id); ok && d.Name != "" {
		return d.Name
	}
	return e.catalog.DeptKey(id)
}

func (e *Engine) viewOf(c *change) *Request {
	v := e.requestView(c.request)
	return &v
}

// TransitionState sets the status of request id and, when in.Department is
// set, moves it. Moving into the completed status finalizes the request.
func (e *Engine) TransitionState(ctx context.Context, id int64, in TransitionInput) (*Request, error) {
	const op = "transition request"
	v := newValidator(op)
	in.Status = v.required("status", in.Status, maxFieldLen)
	in.Department = v.optional("department", in.Department, maxFieldLen)
	in.Comment = v.optional("comment", in.Comment, maxCommentLen)
	in.Actor = v.required("actor", in.Actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}
	if _, ok := e.catalog.Status(in.Status); !ok {
		return nil, wrap(ErrNotFound, op, fmt.Sprintf("status %q", in.Status), nil)
	}
	if in.Department != "" {
		if d, ok := e.catalog.Department(in.Department); !ok || !d.Active {
			return nil, wrap(ErrNotFound, op, fmt.Sprintf("department %q", in.Department), nil)
		}
	}

	c, err := e.mutate(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change) error {
		req, err := e.loadMutable(ctx, tx, op, id)
		if err != nil {
			return err
		}
		dept := in.Department
		if dept == "" {
			dept = e.catalog.DeptKey(req.CurrentDeptID)
		}
		current := e.catalog.DeptKey(req.CurrentDeptID)
		if dept != current {
			if ok, reason := e.table.Permits(current, e.catalog.StatusKey(req.StatusID), dept); !ok {
				return wrap(ErrInvalidTransition, op, reason, nil)
			}
		}
		comment := in.Comment
		if comment == "" {
			comment = "Status updated"
		}
		_, err = e.applyMove(ctx, tx, c, req, move{
			dept:     dept,
			status:   in.Status,
			finalize: in.Status == refdata.StatusCompleted,
			comment:  comment,
			actor:    in.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.viewOf(c), nil
}

// RouteToDepartment moves request id to target with the status the routing
// table assigns on arrival.
func (e *Engine) RouteToDepartment(ctx context.Context, id int64, target, comment, actor string) (*Request, error) {
	const op = "route request"
	v := newValidator(op)
	target = v.required("department", target, maxFieldLen)
	comment = v.optional("comment", comment, maxCommentLen)
	actor = v.required("actor", actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}
	if d, ok := e.catalog.Department(target); !ok || !d.Active {
		return nil, wrap(ErrNotFound, op, fmt.Sprintf("department %q", target), nil)
	}

	c, err := e.mutate(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change) error {
		req, err := e.loadMutable(ctx, tx, op, id)
		if err != nil {
			return err
		}
		return e.route(ctx, tx, c, op, req, target, comment, actor, 0, false)
	})
	if err != nil {
		return nil, err
	}
	return e.viewOf(c), nil
}

// route resolves target through the routing table and applies the move.
func (e *Engine) route(ctx context.Context, tx *store.Tx, c *change, op string, req *store.Request, target, comment, actor string, needID int64, quiet bool) error {
	out, ok := e.table.Resolve(e.catalog.DeptKey(req.CurrentDeptID), e.catalog.StatusKey(req.StatusID), target)
	if !ok {
		return wrap(ErrInvalidTransition, op, fmt.Sprintf("no route to %s", target), nil)
	}
	if !out.Allowed {
		return wrap(ErrInvalidTransition, op, out.Reason, nil)
	}
	if comment == "" {
		comment = fmt.Sprintf("Transferred from %s to %s", e.deptName(req.CurrentDeptID), e.deptName(e.catalog.DeptID(target)))
	}
	_, err := e.applyMove(ctx, tx, c, req, move{
		dept:     target,
		status:   out.Status,
		finalize: out.Finalize,
		comment:  comment,
		actor:    actor,
		needID:   needID,
		quiet:    quiet,
	})
	return err
}

// Finalize completes request id in its current department. A second call
// fails with ErrAlreadyFinalized and changes nothing.
func (e *Engine) Finalize(ctx context.Context, id int64, comment, actor string) (*Request, error) {
	return e.finalize(ctx, "finalize request", id, comment, actor, false)
}

// FinalizeFromLab finalizes a request that currently sits in the lab.
func (e *Engine) FinalizeFromLab(ctx context.Context, id int64, comment, actor string) (*Request, error) {
	return e.finalize(ctx, "finalize from lab", id, comment, actor, true)
}

func (e *Engine) finalize(ctx context.Context, op string, id int64, comment, actor string, fromLab bool) (*Request, error) {
	v := newValidator(op)
	comment = v.optional("comment", comment, maxCommentLen)
	actor = v.required("actor", actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}
	c, err := e.mutate(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Finalized {
			return wrap(ErrAlreadyFinalized, op, fmt.Sprintf("request %s", req.Number), nil)
		}
		dept := e.catalog.DeptKey(req.CurrentDeptID)
		if fromLab && dept != refdata.DeptLab {
			return wrap(ErrInvalidTransition, op, fmt.Sprintf("request %s is not in the lab", req.Number), nil)
		}
		if comment == "" {
			comment = "Request finalized"
			if fromLab {
				comment = "Finalized from Lab"
			}
		}
		_, err = e.applyMove(ctx, tx, c, req, move{
			dept:     dept,
			status:   refdata.StatusCompleted,
			finalize: true,
			comment:  comment,
			actor:    actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.viewOf(c), nil
}

// ReturnToWarehouse sends a request that sits in the lab back to the
// warehouse.
func (e *Engine) ReturnToWarehouse(ctx context.Context, id int64, comment, actor string) (*Request, error) {
	const op = "return to warehouse"
	v := newValidator(op)
	comment = v.optional("comment", comment, maxCommentLen)
	actor = v.required("actor", actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}
	c, err := e.mutate(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change) error {
		req, err := e.loadMutable(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if e.catalog.DeptKey(req.CurrentDeptID) != refdata.DeptLab {
			return wrap(ErrInvalidTransition, op, fmt.Sprintf("request %s is not in the lab", req.Number), nil)
		}
		if comment == "" {
			comment = "Returned from Lab to Warehouse"
		}
		return e.route(ctx, tx, c, op, req, refdata.DeptWarehouse, comment, actor, 0, false)
	})
	if err != nil {
		return nil, err
	}
	return e.viewOf(c), nil
}
