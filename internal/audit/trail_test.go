package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reqflow/internal/audit"
	"reqflow/internal/logging"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
	"reqflow/internal/testsupport"
)

func newTrail(t *testing.T) (*audit.Trail, *store.Store, int64, *time.Time) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, st)
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	u, _ := cat.Urgency(refdata.UrgencyLow)
	req := &store.Request{
		Number:            "SOL-20260315-0001",
		Requester:         "Ana",
		MaterialName:      "Lactosa",
		Lot:               "L-1",
		Supplier:          "Proveedor SA",
		ArticleCode:       "ART-1",
		DestinationDeptID: cat.DeptID(refdata.DeptLab),
		CurrentDeptID:     cat.DeptID(refdata.DeptLab),
		UrgencyID:         u.ID,
		StatusID:          cat.StatusID(refdata.StatusPending),
		CreatedBy:         "ana",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := st.InTx(context.Background(), func(tx *store.Tx) error {
		return tx.InsertRequest(context.Background(), req)
	}); err != nil {
		t.Fatalf("insert request: %v", err)
	}
	trail := audit.NewTrail(st)
	clock := now
	trail.SetClock(func() time.Time { return clock })
	return trail, st, req.ID, &clock
}

func TestBuildMergesOriginAndSnapshots(t *testing.T) {
	ctx := audit.WithOrigin(context.Background(), audit.Origin{
		IP:        "10.0.0.7",
		UserAgent: "curl/8",
		Method:    "POST",
		Path:      "/api/requests/1/route",
	})
	ctx = logging.WithCorrelationID(ctx, "corr-1")

	rec, err := audit.Build(ctx, audit.Entry{
		RequestID:   1,
		Actor:       " marta ",
		Action:      audit.ActionMoveDepartment,
		Description: "moved",
		Before:      map[string]string{"department": "lab"},
		After:       map[string]string{"department": "warehouse"},
	}, time.Date(2026, 3, 15, 11, 0, 0, 0, time.FixedZone("CET", 3600)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rec.Actor != "marta" {
		t.Fatalf("expected trimmed actor, got %q", rec.Actor)
	}
	if rec.IPAddress != "10.0.0.7" || rec.UserAgent != "curl/8" {
		t.Fatalf("origin not copied: %+v", rec)
	}
	if rec.CreatedAt.Location() != time.UTC || rec.CreatedAt.Hour() != 10 {
		t.Fatalf("expected UTC timestamp, got %s", rec.CreatedAt)
	}
	var meta map[string]string
	if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta["method"] != "POST" || meta["path"] != "/api/requests/1/route" || meta[logging.FieldCorrelationID] != "corr-1" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
	if string(rec.Before) != `{"department":"lab"}` {
		t.Fatalf("unexpected before snapshot: %s", rec.Before)
	}
}

func TestBuildRejectsInvalidEntries(t *testing.T) {
	cases := []audit.Entry{
		{Actor: "a", Action: audit.ActionCreateRequest},
		{RequestID: 1, Action: audit.ActionCreateRequest},
		{RequestID: 1, Actor: "a", Action: "explode"},
	}
	for _, e := range cases {
		if _, err := audit.Build(context.Background(), e, time.Now()); !errors.Is(err, audit.ErrInvalidEntry) {
			t.Fatalf("expected ErrInvalidEntry for %+v, got %v", e, err)
		}
	}
}

func TestRecordOnlyAcceptsNonMutatingActions(t *testing.T) {
	trail, _, reqID, _ := newTrail(t)
	ctx := context.Background()

	if _, err := trail.Record(ctx, audit.Entry{RequestID: reqID, Actor: "ana", Action: audit.ActionFinalizeRequest}); !errors.Is(err, audit.ErrInvalidEntry) {
		t.Fatalf("expected mutating action to be rejected, got %v", err)
	}
	if _, err := trail.Record(ctx, audit.Entry{RequestID: 9999, Actor: "ana", Action: audit.ActionViewRequest}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown request, got %v", err)
	}
	rec, err := trail.Record(ctx, audit.Entry{RequestID: reqID, Actor: "ana", Action: audit.ActionViewRequest, Description: "viewed"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected record id to be assigned")
	}
}

func TestQueryOrdersAndFilters(t *testing.T) {
	trail, st, reqID, clock := newTrail(t)
	ctx := context.Background()

	write := func(actor string, action audit.Action) {
		t.Helper()
		if err := st.InTx(ctx, func(tx *store.Tx) error {
			_, err := trail.RecordTx(ctx, tx, audit.Entry{RequestID: reqID, Actor: actor, Action: action})
			return err
		}); err != nil {
			t.Fatalf("RecordTx: %v", err)
		}
		*clock = clock.Add(time.Minute)
	}
	write("ana", audit.ActionCreateRequest)
	write("marta", audit.ActionMoveDepartment)
	write("marta", audit.ActionCreateNeed)
	write("luis", audit.ActionMoveDepartment)

	newest, err := trail.ForRequest(ctx, reqID, audit.Filter{})
	if err != nil {
		t.Fatalf("ForRequest: %v", err)
	}
	if len(newest) != 4 || newest[0].Actor != "luis" {
		t.Fatalf("expected newest first, got %+v", newest)
	}
	oldest, err := trail.ForRequest(ctx, reqID, audit.Filter{Chronological: true})
	if err != nil {
		t.Fatalf("ForRequest chronological: %v", err)
	}
	if oldest[0].Action != string(audit.ActionCreateRequest) {
		t.Fatalf("expected create first, got %+v", oldest[0])
	}

	byMarta, err := trail.ByActor(ctx, "marta", audit.Filter{})
	if err != nil || len(byMarta) != 2 {
		t.Fatalf("expected two marta records, got %d (%v)", len(byMarta), err)
	}
	if _, err := trail.ByActor(ctx, "  ", audit.Filter{}); !errors.Is(err, audit.ErrInvalidEntry) {
		t.Fatalf("expected blank actor to be rejected, got %v", err)
	}

	moves, err := trail.Query(ctx, audit.Filter{Action: audit.ActionMoveDepartment})
	if err != nil || len(moves) != 2 {
		t.Fatalf("expected two moves, got %d (%v)", len(moves), err)
	}
	windowed, err := trail.Query(ctx, audit.Filter{
		From: time.Date(2026, 3, 15, 10, 1, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 15, 10, 3, 0, 0, time.UTC),
	})
	if err != nil || len(windowed) != 2 {
		t.Fatalf("expected two records in window, got %d (%v)", len(windowed), err)
	}

	stats, err := trail.Stats(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 4 {
		t.Fatalf("expected total 4, got %d", stats.Total)
	}
	if stats.ByAction[0].Key != string(audit.ActionMoveDepartment) || stats.ByAction[0].Count != 2 {
		t.Fatalf("unexpected action grouping: %+v", stats.ByAction)
	}
	if stats.TopActors[0].Key != "marta" || stats.TopActors[0].Count != 2 {
		t.Fatalf("unexpected top actors: %+v", stats.TopActors)
	}
}
