package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reqflow/internal/events"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
	"reqflow/internal/testsupport"
	"reqflow/internal/workflow"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so timestamps are strictly ordered.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	engine *workflow.Engine
	store  *store.Store
	clock  *fakeClock
	events *events.Broadcaster
	wakes  int
	mu     sync.Mutex
}

func newHarness(t *testing.T, opts ...workflow.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithViewAuditing())
	st := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		store:  st,
		clock:  &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		events: events.New(events.WithSubscriberBuffer(64)),
	}
	t.Cleanup(h.events.Close)
	base := []workflow.Option{
		workflow.WithClock(h.clock.Now),
		workflow.WithBroadcaster(h.events),
		workflow.WithOutboxWake(func() {
			h.mu.Lock()
			h.wakes++
			h.mu.Unlock()
		}),
	}
	h.engine = testsupport.MustEngine(t, cfg, st, append(base, opts...)...)
	return h
}

func createInput(dest string) workflow.CreateInput {
	return workflow.CreateInput{
		Requester:    "Ana Ruiz",
		MaterialName: "Resina epoxi",
		Lot:          "L-2041",
		Supplier:     "Quimicos del Norte",
		ArticleCode:  "ART-778",
		Destination:  dest,
		Urgency:      refdata.UrgencyHigh,
		Actor:        "ana",
	}
}

func (h *harness) create(t *testing.T, dest string) *workflow.Request {
	t.Helper()
	req, err := h.engine.CreateRequest(context.Background(), createInput(dest))
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return req
}

func (h *harness) history(t *testing.T, id int64) []*store.HistoryEntry {
	t.Helper()
	entries, err := h.store.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	return entries
}

func (h *harness) get(t *testing.T, id int64) *workflow.RequestDetail {
	t.Helper()
	detail, err := h.engine.GetRequest(context.Background(), id, "")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	return detail
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func expectPosition(t *testing.T, req *workflow.Request, dept, status string) {
	t.Helper()
	if req.Department != dept || req.Status != status {
		t.Fatalf("expected %s/%s, got %s/%s", dept, status, req.Department, req.Status)
	}
}
