package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reqflow/internal/logging"
	"reqflow/internal/store"
)

// ErrInvalidEntry reports an entry that cannot be recorded.
var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry is an action to record. Before and After are marshalled to JSON
// snapshots; nil values are stored as NULL.
type Entry struct {
	RequestID   int64
	Actor       string
	Action      Action
	Description string
	Before      any
	After       any
	Metadata    map[string]any
}

// Filter narrows trail queries.
type Filter struct {
	RequestID int64
	Actor     string
	Action    Action
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
	// Chronological lists oldest first. The default is newest first.
	Chronological bool
}

// Stats summarizes the trail for a filter.
type Stats struct {
	Total     int              `json:"total"`
	ByAction  []store.CountRow `json:"by_action"`
	TopActors []store.CountRow `json:"top_actors"`
}

// Trail reads and writes audit records.
type Trail struct {
	store *store.Store
	now   func() time.Time
}

// NewTrail returns a trail backed by st.
func NewTrail(st *store.Store) *Trail {
	return &Trail{store: st, now: time.Now}
}

// SetClock overrides the time source used for records.
func (t *Trail) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Build converts e into a store record stamped at now, merging the origin
// carried by ctx.
func Build(ctx context.Context, e Entry, now time.Time) (*store.AuditRecord, error) {
	if e.RequestID <= 0 {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidEntry)
	}
	if !e.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	actor := strings.TrimSpace(e.Actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidEntry)
	}

	before, err := snapshot(e.Before)
	if err != nil {
		return nil, fmt.Errorf("encode before snapshot: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return nil, fmt.Errorf("encode after snapshot: %w", err)
	}

	origin := OriginFrom(ctx)
	meta := make(map[string]any, len(e.Metadata)+3)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	if origin.Method != "" {
		meta["method"] = origin.Method
	}
	if origin.Path != "" {
		meta["path"] = origin.Path
	}
	if id, ok := logging.CorrelationIDFromContext(ctx); ok {
		meta[logging.FieldCorrelationID] = id
	}
	var metadata json.RawMessage
	if len(meta) > 0 {
		if metadata, err = json.Marshal(meta); err != nil {
			return nil, fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	return &store.AuditRecord{
		RequestID:   e.RequestID,
		Actor:       actor,
		Action:      string(e.Action),
		Description: e.Description,
		Before:      before,
		After:       after,
		IPAddress:   origin.IP,
		UserAgent:   origin.UserAgent,
		Metadata:    metadata,
		CreatedAt:   now.UTC(),
	}, nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// RecordTx appends e inside tx.
func (t *Trail) RecordTx(ctx context.Context, tx *store.Tx, e Entry) (*store.AuditRecord, error) {
	rec, err := Build(ctx, e, t.now())
	if err != nil {
		return nil, err
	}
	if err := tx.AppendAudit(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Record appends a standalone record for an action that does not change
// request state.
func (t *Trail) Record(ctx context.Context, e Entry) (*store.AuditRecord, error) {
	if e.Action.Mutating() {
		return nil, fmt.Errorf("%w: %s must be recorded with its mutation", ErrInvalidEntry, e.Action)
	}
	rec, err := Build(ctx, e, t.now())
	if err != nil {
		return nil, err
	}
	if _, err := t.store.GetRequest(ctx, e.RequestID); err != nil {
		return nil, err
	}
	if err := t.store.AppendAudit(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Query lists records matching f.
func (t *Trail) Query(ctx context.Context, f Filter) ([]*store.AuditRecord, error) {
	return t.store.ListAudit(ctx, f.storeFilter())
}

// ForRequest lists the records of one request.
func (t *Trail) ForRequest(ctx context.Context, requestID int64, f Filter) ([]*store.AuditRecord, error) {
	f.RequestID = requestID
	return t.Query(ctx, f)
}

// ByActor lists the records written by actor.
func (t *Trail) ByActor(ctx context.Context, actor string, f Filter) ([]*store.AuditRecord, error) {
	f.Actor = strings.TrimSpace(actor)
	if f.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidEntry)
	}
	return t.Query(ctx, f)
}

// Stats aggregates records matching f.
func (t *Trail) Stats(ctx context.Context, f Filter) (Stats, error) {
	s, err := t.store.AuditStats(ctx, f.storeFilter())
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: s.Total, ByAction: s.ByAction, TopActors: s.TopActors}, nil
}

func (f Filter) storeFilter() store.AuditFilter {
	return store.AuditFilter{
		RequestID: f.RequestID,
		Actor:     f.Actor,
		Action:    string(f.Action),
		From:      f.From,
		To:        f.To,
		Limit:     f.Limit,
		Offset:    f.Offset,
		Ascending: f.Chronological,
	}
}
