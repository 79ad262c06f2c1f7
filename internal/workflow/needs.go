package workflow

import (
	"context"
	"fmt"
	"time"

	"reqflow/internal/audit"
	"reqflow/internal/events"
	"reqflow/internal/logging"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
)

const commentExcerptLen = 100

// NeedInput describes a new need.
type NeedInput struct {
	Description    string
	AnalysisType   string
	RequiredParams string
	Actor          string
}

// NeedUpdate changes the editable fields of an open need. Nil fields are
// left alone.
type NeedUpdate struct {
	Description    *string
	AnalysisType   *string
	RequiredParams *string
	Observations   *string
	Actor          string
}

// NeedFilter narrows ListNeeds.
type NeedFilter struct {
	RequestID int64
	Completed *bool
	Limit     int
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= commentExcerptLen {
		return s
	}
	return string(r[:commentExcerptLen]) + "..."
}

// needState is the audit snapshot of a need.
type needState struct {
	Description    string     `json:"description"`
	AnalysisType   string     `json:"analysis_type,omitempty"`
	RequiredParams string     `json:"required_params,omitempty"`
	Completed      bool       `json:"completed"`
	Result         string     `json:"result,omitempty"`
	Observations   string     `json:"observations,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletedBy    string     `json:"completed_by,omitempty"`
}

func stateOf(n *store.Need) needState {
	return needState{
		Description:    n.Description,
		AnalysisType:   n.AnalysisType,
		RequiredParams: n.RequiredParams,
		Completed:      n.Completed,
		Result:         n.Result,
		Observations:   n.Observations,
		CompletedAt:    n.CompletedAt,
		CompletedBy:    n.CompletedBy,
	}
}

func (e *Engine) needEvent(kind events.Kind, req *store.Request, need *store.Need, prevDept, comment, actor string) events.Event {
	return events.Event{
		Kind:           kind,
		RequestID:      req.ID,
		Number:         req.Number,
		NeedID:         need.ID,
		Department:     e.catalog.DeptKey(req.CurrentDeptID),
		PrevDepartment: prevDept,
		Status:         e.catalog.StatusKey(req.StatusID),
		Actor:          actor,
		Comment:        comment,
		OccurredAt:     e.timestamp(),
	}
}

// mutateNeed locates the parent of need id and runs fn under the parent's
// lock with both rows loaded. A finalized parent rejects every need change.
func (e *Engine) mutateNeed(ctx context.Context, op string, id int64, fn func(ctx context.Context, tx *store.Tx, c *change, req *store.Request, need *store.Need) error) (*change, error) {
	started := time.Now()
	existing, err := e.store.GetNeed(ctx, id)
	if err != nil {
		err = classify(ctx, op, err)
		e.metrics.ObserveOperation(op, started, Kind(err))
		return nil, err
	}
	return e.mutate(ctx, op, existing.RequestID, func(ctx context.Context, tx *store.Tx, c *change) error {
		need, err := tx.GetNeed(ctx, id)
		if err != nil {
			return err
		}
		req, err := e.loadMutable(ctx, tx, op, need.RequestID)
		if err != nil {
			return err
		}
		c.need = need
		return fn(ctx, tx, c, req, need)
	})
}

// CreateNeed attaches a need to request requestID. A request in the lab is
// sent to the warehouse to satisfy the need; any other request is sent to
// the lab.
func (e *Engine) CreateNeed(ctx context.Context, requestID int64, in NeedInput) (*Need, error) {
	const op = "create need"
	v := newValidator(op)
	in.Description = v.between("description", in.Description, minNeedDescLen, maxNeedDescLen)
	in.AnalysisType = v.optional("analysis_type", in.AnalysisType, maxFieldLen)
	in.RequiredParams = v.optional("required_params", in.RequiredParams, maxParamsLen)
	in.Actor = v.required("actor", in.Actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}

	c, err := e.mutate(ctx, op, requestID, func(ctx context.Context, tx *store.Tx, c *change) error {
		req, err := e.loadMutable(ctx, tx, op, requestID)
		if err != nil {
			return err
		}
		need := &store.Need{
			RequestID:      req.ID,
			Description:    in.Description,
			AnalysisType:   in.AnalysisType,
			RequiredParams: in.RequiredParams,
			CreatedBy:      in.Actor,
			CreatedAt:      e.timestamp(),
		}
		if err := tx.InsertNeed(ctx, need); err != nil {
			return err
		}
		c.need = need

		target, comment := refdata.DeptLab, "Analysis need raised: "+excerpt(in.Description)
		if e.catalog.DeptKey(req.CurrentDeptID) == refdata.DeptLab {
			target, comment = refdata.DeptWarehouse, "Warehouse need raised from Lab: "+excerpt(in.Description)
		}
		before := e.positionOf(req)
		prevDept := e.catalog.DeptKey(req.CurrentDeptID)
		if err := e.route(ctx, tx, c, op, req, target, comment, in.Actor, need.ID, true); err != nil {
			return err
		}
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       in.Actor,
			Action:      audit.ActionCreateNeed,
			Description: comment,
			Before:      before,
			After:       map[string]any{"request": e.positionOf(req), "need": stateOf(need)},
			Metadata:    map[string]any{"need_id": need.ID},
		}); err != nil {
			return err
		}
		c.events = append(c.events, e.needEvent(events.KindNeedCreated, req, need, prevDept, comment, in.Actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("need created",
		logging.Int64(logging.FieldRequestID, requestID),
		logging.Int64(logging.FieldNeedID, c.need.ID),
		logging.String("department", e.catalog.DeptKey(c.request.CurrentDeptID)),
		logging.String(logging.FieldActor, in.Actor),
	)
	view := needView(c.need)
	return &view, nil
}

// CompleteNeed records the result of need id and sends its request to the
// warehouse, appending history even when the request is already there.
func (e *Engine) CompleteNeed(ctx context.Context, id int64, result, observations, actor string) (*Need, error) {
	const op = "complete need"
	v := newValidator(op)
	result = v.between("result", result, minResultLen, maxResultLen)
	observations = v.optional("observations", observations, maxObservationLen)
	actor = v.required("actor", actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}

	c, err := e.mutateNeed(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change, req *store.Request, need *store.Need) error {
		if need.Completed {
			return wrap(ErrAlreadyCompleted, op, fmt.Sprintf("need %d", need.ID), nil)
		}
		beforeNeed := stateOf(need)
		now := e.timestamp()
		need.Completed = true
		need.CompletedAt = &now
		need.CompletedBy = actor
		need.Result = result
		if observations != "" {
			need.Observations = observations
		}
		if err := tx.UpdateNeed(ctx, need); err != nil {
			return err
		}

		comment := "Need completed: " + excerpt(need.Description)
		prevDept := e.catalog.DeptKey(req.CurrentDeptID)
		if err := e.route(ctx, tx, c, op, req, refdata.DeptWarehouse, comment, actor, need.ID, true); err != nil {
			return err
		}
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       actor,
			Action:      audit.ActionCompleteNeed,
			Description: comment,
			Before:      beforeNeed,
			After:       stateOf(need),
			Metadata:    map[string]any{"need_id": need.ID},
		}); err != nil {
			return err
		}
		c.events = append(c.events, e.needEvent(events.KindNeedCompleted, req, need, prevDept, comment, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := needView(c.need)
	return &view, nil
}

// ReopenNeed reverts a completed need and sends its request back to the
// lab. The reason is appended to the observations.
func (e *Engine) ReopenNeed(ctx context.Context, id int64, reason, actor string) (*Need, error) {
	const op = "reopen need"
	v := newValidator(op)
	reason = v.between("reason", reason, minReopenLen, maxReopenLen)
	actor = v.required("actor", actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}

	c, err := e.mutateNeed(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change, req *store.Request, need *store.Need) error {
		if !need.Completed {
			return wrap(ErrNotCompleted, op, fmt.Sprintf("need %d", need.ID), nil)
		}
		beforeNeed := stateOf(need)
		need.Completed = false
		need.CompletedAt = nil
		need.CompletedBy = ""
		need.Observations += "\n\n[REOPENED] " + reason
		if err := tx.UpdateNeed(ctx, need); err != nil {
			return err
		}

		comment := "Need reopened: " + excerpt(reason)
		prevDept := e.catalog.DeptKey(req.CurrentDeptID)
		if err := e.route(ctx, tx, c, op, req, refdata.DeptLab, comment, actor, need.ID, true); err != nil {
			return err
		}
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       actor,
			Action:      audit.ActionReopenNeed,
			Description: comment,
			Before:      beforeNeed,
			After:       stateOf(need),
			Metadata:    map[string]any{"need_id": need.ID, "reason": reason},
		}); err != nil {
			return err
		}
		c.events = append(c.events, e.needEvent(events.KindNeedReopened, req, need, prevDept, comment, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := needView(c.need)
	return &view, nil
}

// UpdateNeed edits an open need. The parent request does not move.
func (e *Engine) UpdateNeed(ctx context.Context, id int64, in NeedUpdate) (*Need, error) {
	const op = "update need"
	v := newValidator(op)
	if in.Description != nil {
		*in.Description = v.between("description", *in.Description, minNeedDescLen, maxNeedDescLen)
	}
	if in.AnalysisType != nil {
		*in.AnalysisType = v.optional("analysis_type", *in.AnalysisType, maxFieldLen)
	}
	if in.RequiredParams != nil {
		*in.RequiredParams = v.optional("required_params", *in.RequiredParams, maxParamsLen)
	}
	if in.Observations != nil {
		*in.Observations = v.optional("observations", *in.Observations, maxObservationLen)
	}
	in.Actor = v.required("actor", in.Actor, maxFieldLen)
	if err := v.err(); err != nil {
		return nil, err
	}

	c, err := e.mutateNeed(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change, req *store.Request, need *store.Need) error {
		if need.Completed {
			return wrap(ErrAlreadyCompleted, op, fmt.Sprintf("need %d", need.ID), nil)
		}
		beforeNeed := stateOf(need)
		if in.Description != nil {
			need.Description = *in.Description
		}
		if in.AnalysisType != nil {
			need.AnalysisType = *in.AnalysisType
		}
		if in.RequiredParams != nil {
			need.RequiredParams = *in.RequiredParams
		}
		if in.Observations != nil {
			need.Observations = *in.Observations
		}
		if err := tx.UpdateNeed(ctx, need); err != nil {
			return err
		}
		if err := tx.TouchRequest(ctx, req.ID, e.timestamp()); err != nil {
			return err
		}
		comment := "Need updated: " + excerpt(need.Description)
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       in.Actor,
			Action:      audit.ActionUpdateNeed,
			Description: comment,
			Before:      beforeNeed,
			After:       stateOf(need),
			Metadata:    map[string]any{"need_id": need.ID},
		}); err != nil {
			return err
		}
		c.request = req
		c.events = append(c.events, e.needEvent(events.KindNeedUpdated, req, need, "", comment, in.Actor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := needView(c.need)
	return &view, nil
}

// DeleteNeed removes an open need. The need row is gone afterwards; the
// audit trail keeps its description and owning request.
func (e *Engine) DeleteNeed(ctx context.Context, id int64, actor string) error {
	const op = "delete need"
	v := newValidator(op)
	actor = v.required("actor", actor, maxFieldLen)
	if err := v.err(); err != nil {
		return err
	}

	_, err := e.mutateNeed(ctx, op, id, func(ctx context.Context, tx *store.Tx, c *change, req *store.Request, need *store.Need) error {
		if need.Completed {
			return wrap(ErrCannotDeleteCompleted, op, fmt.Sprintf("need %d", need.ID), nil)
		}
		if err := tx.DeleteNeed(ctx, need.ID); err != nil {
			return err
		}
		if err := tx.TouchRequest(ctx, req.ID, e.timestamp()); err != nil {
			return err
		}
		comment := "Need deleted: " + excerpt(need.Description)
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       actor,
			Action:      audit.ActionDeleteNeed,
			Description: comment,
			Before:      stateOf(need),
			Metadata:    map[string]any{"need_id": need.ID},
		}); err != nil {
			return err
		}
		c.request = req
		c.events = append(c.events, e.needEvent(events.KindNeedDeleted, req, need, "", comment, actor))
		return nil
	})
	return err
}

// GetNeed returns one need.
func (e *Engine) GetNeed(ctx context.Context, id int64) (*Need, error) {
	n, err := e.store.GetNeed(ctx, id)
	if err != nil {
		return nil, classify(ctx, "get need", err)
	}
	view := needView(n)
	return &view, nil
}

// ListNeeds returns needs matching f, oldest first.
func (e *Engine) ListNeeds(ctx context.Context, f NeedFilter) ([]Need, error) {
	if f.RequestID != 0 {
		if _, err := e.store.GetRequest(ctx, f.RequestID); err != nil {
			return nil, classify(ctx, "list needs", err)
		}
	}
	rows, err := e.store.ListNeeds(ctx, store.NeedFilter{RequestID: f.RequestID, Completed: f.Completed, Limit: f.Limit})
	if err != nil {
		return nil, classify(ctx, "list needs", err)
	}
	out := make([]Need, 0, len(rows))
	for _, n := range rows {
		out = append(out, needView(n))
	}
	return out, nil
}
