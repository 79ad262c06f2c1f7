package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reqflow/internal/history"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
	"reqflow/internal/testsupport"
)

type fixture struct {
	store  *store.Store
	cat    *refdata.Catalog
	ledger *history.Ledger
	req    *store.Request
	start  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustCatalog(t, st)
	start := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	u, _ := cat.Urgency(refdata.UrgencyMedium)
	req := &store.Request{
		Number:            "SOL-20260316-0001",
		Requester:         "Ana",
		MaterialName:      "Almidon",
		Lot:               "L-9",
		Supplier:          "Proveedor SA",
		ArticleCode:       "ART-9",
		DestinationDeptID: cat.DeptID(refdata.DeptWarehouse),
		CurrentDeptID:     cat.DeptID(refdata.DeptWarehouse),
		UrgencyID:         u.ID,
		StatusID:          cat.StatusID(refdata.StatusPending),
		CreatedBy:         "ana",
		CreatedAt:         start,
		UpdatedAt:         start,
	}
	err := st.InTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.InsertRequest(context.Background(), req); err != nil {
			return err
		}
		return tx.AppendHistory(context.Background(), &store.HistoryEntry{
			RequestID:  req.ID,
			ToDeptID:   req.CurrentDeptID,
			ToStatusID: req.StatusID,
			Comment:    "Request created",
			Actor:      "ana",
			CreatedAt:  start,
		})
	})
	if err != nil {
		t.Fatalf("insert request: %v", err)
	}
	return &fixture{store: st, cat: cat, ledger: history.NewLedger(st, cat), req: req, start: start}
}

// move updates the request row and appends the matching entry.
func (f *fixture) move(t *testing.T, dept, status string, at time.Time, needID int64) {
	t.Helper()
	err := f.store.InTx(context.Background(), func(tx *store.Tx) error {
		req, err := tx.GetRequest(context.Background(), f.req.ID)
		if err != nil {
			return err
		}
		entry := &store.HistoryEntry{
			RequestID:    req.ID,
			FromDeptID:   req.CurrentDeptID,
			FromStatusID: req.StatusID,
			ToDeptID:     f.cat.DeptID(dept),
			ToStatusID:   f.cat.StatusID(status),
			NeedID:       needID,
			Actor:        "marta",
			CreatedAt:    at,
		}
		req.CurrentDeptID = entry.ToDeptID
		req.StatusID = entry.ToStatusID
		req.UpdatedAt = at
		if err := tx.UpdateRequest(context.Background(), req); err != nil {
			return err
		}
		return tx.AppendHistory(context.Background(), entry)
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
}

func TestReplayFollowsChain(t *testing.T) {
	entries := []*store.HistoryEntry{
		{ID: 1, ToDeptID: 2, ToStatusID: 1},
		{ID: 2, FromDeptID: 2, FromStatusID: 1, ToDeptID: 3, ToStatusID: 3},
		{ID: 3, FromDeptID: 3, FromStatusID: 3, ToDeptID: 2, ToStatusID: 2},
	}
	pos, err := history.Replay(entries)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if pos.DeptID != 2 || pos.StatusID != 2 {
		t.Fatalf("unexpected position %+v", pos)
	}

	entries[2].FromDeptID = 4
	if _, err := history.Replay(entries); !errors.Is(err, history.ErrBrokenChain) {
		t.Fatalf("expected ErrBrokenChain, got %v", err)
	}
	if _, err := history.Replay(nil); !errors.Is(err, history.ErrBrokenChain) {
		t.Fatalf("expected ErrBrokenChain for empty ledger, got %v", err)
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.move(t, refdata.DeptLab, refdata.StatusInLab, f.start.Add(time.Minute), 0)
	if err := f.ledger.Verify(ctx, f.req.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// Change the row without a ledger entry.
	err := f.store.InTx(ctx, func(tx *store.Tx) error {
		req, err := tx.GetRequest(ctx, f.req.ID)
		if err != nil {
			return err
		}
		req.StatusID = f.cat.StatusID(refdata.StatusRejected)
		return tx.UpdateRequest(ctx, req)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.ledger.Verify(ctx, f.req.ID); !errors.Is(err, history.ErrBrokenChain) {
		t.Fatalf("expected ErrBrokenChain, got %v", err)
	}
}

func TestTimelineOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	needAt := f.start.Add(time.Minute)
	need := &store.Need{
		RequestID:    f.req.ID,
		Description:  "Check moisture content",
		AnalysisType: "moisture",
		CreatedBy:    "marta",
		CreatedAt:    needAt,
	}
	if err := f.store.InTx(ctx, func(tx *store.Tx) error { return tx.InsertNeed(ctx, need) }); err != nil {
		t.Fatalf("InsertNeed: %v", err)
	}
	// Same timestamp as the need: the need moment sorts first.
	f.move(t, refdata.DeptLab, refdata.StatusInLab, needAt, need.ID)

	items, err := f.ledger.Timeline(ctx, f.req.ID, history.Chronological)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	want := []history.Kind{history.KindMovement, history.KindNeedCreated, history.KindMovement}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %+v", len(want), items)
	}
	for i, kind := range want {
		if items[i].Kind != kind {
			t.Fatalf("item %d: expected %s, got %s", i, kind, items[i].Kind)
		}
	}
	move := items[2]
	if move.FromDept != refdata.DeptWarehouse || move.ToDept != refdata.DeptLab || move.NeedID != need.ID {
		t.Fatalf("unexpected movement %+v", move)
	}
	if items[1].Comment != "Need created: Check moisture content" || items[1].AnalysisType != "moisture" {
		t.Fatalf("unexpected need item %+v", items[1])
	}
	if items[1].FromDept != refdata.DeptWarehouse || items[1].ToDept != refdata.DeptLab || items[1].ToStatus != refdata.StatusInLab {
		t.Fatalf("need item should mirror the movement it caused, got %+v", items[1])
	}

	reversed, err := f.ledger.Timeline(ctx, f.req.ID, history.Reverse)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if reversed[0].EntryID != items[2].EntryID || reversed[2].Kind != history.KindMovement {
		t.Fatalf("unexpected reverse order %+v", reversed)
	}
}

func TestEntriesUnknownRequest(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.Entries(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}
