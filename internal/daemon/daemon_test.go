package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"reqflow/internal/daemon"
	"reqflow/internal/events"
	"reqflow/internal/logging"
	"reqflow/internal/refdata"
	"reqflow/internal/testsupport"
	"reqflow/internal/workflow"
)

func startDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *daemon.Components) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	ctx := context.Background()
	components, err := daemon.Build(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, err := daemon.New(cfg, components, logging.NewNop())
	if err != nil {
		_ = components.Close()
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d, components
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected api address once started")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := daemon.Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d1, err := daemon.New(cfg, first, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d1.Close() })
	if err := d1.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second, err := daemon.Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Build second: %v", err)
	}
	d2, err := daemon.New(cfg, second, nil)
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	t.Cleanup(func() { _ = d2.Close() })
	if err := d2.Start(ctx); err == nil {
		t.Fatal("expected lock contention to reject the second daemon")
	}
}

func TestBuildSeedsReferenceData(t *testing.T) {
	_, components := startDaemon(t)
	catalog := components.Engine.Catalog()
	if len(catalog.Departments()) != 4 {
		t.Fatalf("expected 4 seeded departments, got %d", len(catalog.Departments()))
	}
	if _, ok := catalog.Status(refdata.StatusPending); !ok {
		t.Fatal("expected pending status to be seeded")
	}
}

func TestDaemonServesHealthAndRequests(t *testing.T) {
	d, components := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := "http://" + d.Status(ctx).APIAddress
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	req, err := components.Engine.CreateRequest(ctx, workflow.CreateInput{
		Requester:    "Ana",
		MaterialName: "Resin",
		Supplier:     "Acme",
		ArticleCode:  "ART-1",
		Lot:          "L-1",
		Destination:  refdata.DeptWarehouse,
		Urgency:      refdata.UrgencyMedium,
		Actor:        "ana",
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/requests/%d", base, req.ID))
	if err != nil {
		t.Fatalf("GET request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["number"] != req.Number {
		t.Fatalf("number = %v, want %s", body["number"], req.Number)
	}
}

func TestDispatcherDrainsNotificationIntents(t *testing.T) {
	d, components := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := components.Engine.CreateRequest(ctx, workflow.CreateInput{
		Requester:    "Ana",
		MaterialName: "Resin",
		Supplier:     "Acme",
		ArticleCode:  "ART-1",
		Lot:          "L-2",
		Destination:  refdata.DeptWarehouse,
		Urgency:      refdata.UrgencyLow,
		Actor:        "ana",
	}); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if d.Status(ctx).OutboxPending == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbox still has %d pending messages", d.Status(ctx).OutboxPending)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBuildWithRedisTransport(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	_, components := startDaemon(t, testsupport.WithRedis(mr.Addr()))
	if components.Redis == nil {
		t.Fatal("expected redis client when redis transport is enabled")
	}

	ctx := context.Background()
	pubsub := components.Redis.Subscribe(ctx, "reqflow:"+events.ChannelAll)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := components.Engine.CreateRequest(ctx, workflow.CreateInput{
		Requester:    "Ana",
		MaterialName: "Resin",
		Supplier:     "Acme",
		ArticleCode:  "ART-1",
		Lot:          "L-3",
		Destination:  refdata.DeptLab,
		Urgency:      refdata.UrgencyHigh,
		Actor:        "ana",
	}); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	select {
	case msg := <-pubsub.Channel():
		var evt events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.Kind != events.KindRequestCreated {
			t.Fatalf("kind = %s, want %s", evt.Kind, events.KindRequestCreated)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis event")
	}
}

func TestSendTestNotificationWithoutTransport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ok, message, err := daemon.SendTestNotification(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SendTestNotification: %v", err)
	}
	if ok {
		t.Fatal("expected no delivery without a transport")
	}
	if message != "no notification transport configured" {
		t.Fatalf("message = %q", message)
	}
}
