package workflow

import (
	"context"

	"reqflow/internal/audit"
	"reqflow/internal/history"
	"reqflow/internal/store"
)

// Timeline returns the movements and need moments of a request merged in
// time order.
func (e *Engine) Timeline(ctx context.Context, requestID int64, order history.Order) ([]history.Item, error) {
	items, err := e.ledger.Timeline(ctx, requestID, order)
	if err != nil {
		return nil, classify(ctx, "request history", err)
	}
	return items, nil
}

// AuditForRequest lists the audit records of one request.
func (e *Engine) AuditForRequest(ctx context.Context, requestID int64, f audit.Filter) ([]*store.AuditRecord, error) {
	const op = "request audit"
	if _, err := e.store.GetRequest(ctx, requestID); err != nil {
		return nil, classify(ctx, op, err)
	}
	recs, err := e.trail.ForRequest(ctx, requestID, f)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	return recs, nil
}

// AuditByActor lists the audit records written by actor.
func (e *Engine) AuditByActor(ctx context.Context, actor string, f audit.Filter) ([]*store.AuditRecord, error) {
	recs, err := e.trail.ByActor(ctx, actor, f)
	if err != nil {
		return nil, classify(ctx, "actor audit", err)
	}
	return recs, nil
}

// AuditTrail lists audit records matching f across all requests.
func (e *Engine) AuditTrail(ctx context.Context, f audit.Filter) ([]*store.AuditRecord, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, validationf("audit trail", "to is before from")
	}
	recs, err := e.trail.Query(ctx, f)
	if err != nil {
		return nil, classify(ctx, "audit trail", err)
	}
	return recs, nil
}

// AuditStats aggregates the audit trail.
func (e *Engine) AuditStats(ctx context.Context, f audit.Filter) (audit.Stats, error) {
	stats, err := e.trail.Stats(ctx, f)
	if err != nil {
		return audit.Stats{}, classify(ctx, "audit stats", err)
	}
	return stats, nil
}

// RecordAction appends an audit record for an action that leaves the
// request unchanged, such as a download.
func (e *Engine) RecordAction(ctx context.Context, entry audit.Entry) (*store.AuditRecord, error) {
	rec, err := e.trail.Record(ctx, entry)
	if err != nil {
		return nil, classify(ctx, "record action", err)
	}
	return rec, nil
}
