package workflow

import (
	"context"
	"fmt"
	"time"

	"reqflow/internal/audit"
	"reqflow/internal/events"
	"reqflow/internal/history"
	"reqflow/internal/logging"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
)

// CreateInput describes a new request. Destination and Urgency are reference
// keys.
type CreateInput struct {
	Requester    string
	MaterialName string
	Lot          string
	Supplier     string
	ArticleCode  string
	Comments     string
	Destination  string
	Urgency      string
	Actor        string
}

// CreateRequest allocates a number and stores a pending request at its
// destination department.
func (e *Engine) CreateRequest(ctx context.Context, in CreateInput) (*Request, error) {
	const op = "create request"
	started := time.Now()

	v := newValidator(op)
	in.Requester = v.required("requester", in.Requester, maxFieldLen)
	in.MaterialName = v.required("material_name", in.MaterialName, maxFieldLen)
	in.Lot = v.required("lot", in.Lot, maxFieldLen)
	in.Supplier = v.required("supplier", in.Supplier, maxFieldLen)
	in.ArticleCode = v.required("article_code", in.ArticleCode, maxFieldLen)
	in.Comments = v.optional("comments", in.Comments, maxCommentLen)
	in.Destination = v.required("destination", in.Destination, maxFieldLen)
	in.Urgency = v.required("urgency", in.Urgency, maxFieldLen)
	in.Actor = v.required("actor", in.Actor, maxFieldLen)
	if err := v.err(); err != nil {
		e.metrics.ObserveOperation(op, started, Kind(err))
		return nil, err
	}

	dest, ok := e.catalog.Department(in.Destination)
	if !ok || !dest.Active {
		err := wrap(ErrNotFound, op, fmt.Sprintf("department %q", in.Destination), nil)
		e.metrics.ObserveOperation(op, started, Kind(err))
		return nil, err
	}
	urgency, ok := e.catalog.Urgency(in.Urgency)
	if !ok {
		err := wrap(ErrNotFound, op, fmt.Sprintf("urgency %q", in.Urgency), nil)
		e.metrics.ObserveOperation(op, started, Kind(err))
		return nil, err
	}

	var c *change
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		c = &change{}
		now := e.timestamp()
		number, err := e.allocator.Allocate(ctx, tx, now)
		if err != nil {
			return err
		}
		req := &store.Request{
			Number:            number,
			Requester:         in.Requester,
			MaterialName:      in.MaterialName,
			Lot:               in.Lot,
			Supplier:          in.Supplier,
			ArticleCode:       in.ArticleCode,
			Comments:          in.Comments,
			DestinationDeptID: dest.ID,
			CurrentDeptID:     dest.ID,
			UrgencyID:         urgency.ID,
			StatusID:          e.catalog.StatusID(refdata.StatusPending),
			CreatedBy:         in.Actor,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertRequest(ctx, req); err != nil {
			return err
		}
		comment := in.Comments
		if comment == "" {
			comment = "Request created"
		}
		if err := tx.AppendHistory(ctx, &store.HistoryEntry{
			RequestID:  req.ID,
			ToDeptID:   req.CurrentDeptID,
			ToStatusID: req.StatusID,
			Comment:    comment,
			Actor:      in.Actor,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if _, err := e.trail.RecordTx(ctx, tx, audit.Entry{
			RequestID:   req.ID,
			Actor:       in.Actor,
			Action:      audit.ActionCreateRequest,
			Description: "Created request " + number,
			After:       e.positionOf(req),
		}); err != nil {
			return err
		}
		if err := e.enqueueNotification(ctx, tx, c, req, dest.Key, comment, in.Actor); err != nil {
			return err
		}
		c.request = req
		c.events = append(c.events, events.Event{
			Kind:       events.KindRequestCreated,
			RequestID:  req.ID,
			Number:     number,
			Department: dest.Key,
			Status:     refdata.StatusPending,
			Actor:      in.Actor,
			Comment:    comment,
			OccurredAt: now,
		})
		c.metricFn = append(c.metricFn, e.metrics.RequestCreated)
		return nil
	})
	err = classify(ctx, op, err)
	e.metrics.ObserveOperation(op, started, Kind(err))
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, c)
	e.logger.Info("request created",
		logging.Int64(logging.FieldRequestID, c.request.ID),
		logging.String(logging.FieldRequestNumber, c.request.Number),
		logging.String("department", dest.Key),
		logging.String(logging.FieldActor, in.Actor),
	)
	view := e.requestView(c.request)
	return &view, nil
}

// GetRequest returns a request with its needs and timeline. When view
// auditing is enabled and actor is set, the read is recorded.
func (e *Engine) GetRequest(ctx context.Context, id int64, actor string) (*RequestDetail, error) {
	const op = "get request"
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	needs, err := e.store.ListNeeds(ctx, store.NeedFilter{RequestID: id})
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	timeline, err := e.ledger.Timeline(ctx, id, history.Chronological)
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	detail := &RequestDetail{
		Request:  e.requestView(req),
		Needs:    make([]Need, 0, len(needs)),
		Timeline: timeline,
	}
	for _, n := range needs {
		detail.Needs = append(detail.Needs, needView(n))
	}

	if e.recordViews && actor != "" {
		if _, err := e.trail.Record(ctx, audit.Entry{
			RequestID:   id,
			Actor:       actor,
			Action:      audit.ActionViewRequest,
			Description: "Viewed request " + req.Number,
		}); err != nil {
			logging.WarnWithContext(e.logger, "view audit failed", "audit_view_failed",
				logging.Int64(logging.FieldRequestID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "read is missing from the audit trail"),
			)
		}
	}
	return detail, nil
}

// GetRequestByNumber resolves a request number and returns its detail.
func (e *Engine) GetRequestByNumber(ctx context.Context, number, actor string) (*RequestDetail, error) {
	req, err := e.store.GetRequestByNumber(ctx, number)
	if err != nil {
		return nil, classify(ctx, "get request", err)
	}
	return e.GetRequest(ctx, req.ID, actor)
}

// ListFilter narrows ListRequests. Department, status and urgency are
// reference keys; empty means any.
type ListFilter struct {
	Department        string
	RelatedDepartment string
	Status            string
	Urgency           string
	Finalized         *bool
	CreatedFrom       time.Time
	CreatedTo         time.Time
	Search            string
	WithNeeds         bool
	WithoutNeeds      bool
	Limit             int
	Offset            int
}

func (e *Engine) storeFilter(op string, f ListFilter) (store.RequestFilter, error) {
	out := store.RequestFilter{
		Finalized:    f.Finalized,
		CreatedFrom:  f.CreatedFrom,
		CreatedTo:    f.CreatedTo,
		Search:       f.Search,
		WithNeeds:    f.WithNeeds,
		WithoutNeeds: f.WithoutNeeds,
		Limit:        f.Limit,
		Offset:       f.Offset,
	}
	if f.WithNeeds && f.WithoutNeeds {
		return out, validationf(op, "with_needs and without_needs are exclusive")
	}
	if !f.CreatedFrom.IsZero() && !f.CreatedTo.IsZero() && f.CreatedTo.Before(f.CreatedFrom) {
		return out, validationf(op, "created_to is before created_from")
	}
	if f.Department != "" {
		d, ok := e.catalog.Department(f.Department)
		if !ok {
			return out, validationf(op, "unknown department %q", f.Department)
		}
		out.CurrentDeptID = d.ID
	}
	if f.RelatedDepartment != "" {
		d, ok := e.catalog.Department(f.RelatedDepartment)
		if !ok {
			return out, validationf(op, "unknown department %q", f.RelatedDepartment)
		}
		out.RelatedDeptID = d.ID
	}
	if f.Status != "" {
		s, ok := e.catalog.Status(f.Status)
		if !ok {
			return out, validationf(op, "unknown status %q", f.Status)
		}
		out.StatusID = s.ID
	}
	if f.Urgency != "" {
		u, ok := e.catalog.Urgency(f.Urgency)
		if !ok {
			return out, validationf(op, "unknown urgency %q", f.Urgency)
		}
		out.UrgencyID = u.ID
	}
	return out, nil
}

// ListRequests returns requests ordered by urgency priority, highest first,
// then newest first.
func (e *Engine) ListRequests(ctx context.Context, f ListFilter) ([]Request, error) {
	const op = "list requests"
	sf, err := e.storeFilter(op, f)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListRequests(ctx, sf)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	out := make([]Request, 0, len(rows))
	for _, r := range rows {
		out = append(out, e.requestView(r))
	}
	return out, nil
}

// Stats counts requests matching f by status and current department.
func (e *Engine) Stats(ctx context.Context, f ListFilter) (*Stats, error) {
	const op = "request stats"
	sf, err := e.storeFilter(op, f)
	if err != nil {
		return nil, err
	}
	raw, err := e.store.RequestStats(ctx, sf)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	stats := &Stats{
		Total:        raw.Total,
		Finalized:    raw.Finalized,
		ByStatus:     make(map[string]int, len(raw.ByStatus)),
		ByDepartment: make(map[string]int, len(raw.ByDepartment)),
	}
	for id, n := range raw.ByStatus {
		stats.ByStatus[e.catalog.StatusKey(id)] += n
	}
	for id, n := range raw.ByDepartment {
		stats.ByDepartment[e.catalog.DeptKey(id)] += n
	}
	stats.Pending = stats.ByStatus[refdata.StatusPending]
	stats.InProcess = stats.ByStatus[refdata.StatusInProcess]
	return stats, nil
}
