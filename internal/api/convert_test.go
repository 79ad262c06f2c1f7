package api

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"reqflow/internal/audit"
	"reqflow/internal/store"
)

func TestListFilterFromQuery(t *testing.T) {
	q := url.Values{
		"department": {" lab "},
		"status":     {"in_lab"},
		"finalized":  {"false"},
		"from":       {"2026-03-01"},
		"to":         {"2026-03-14"},
		"limit":      {"20"},
		"offset":     {"40"},
		"needs":      {"with"},
	}
	f, err := ListFilterFromQuery(q)
	if err != nil {
		t.Fatalf("ListFilterFromQuery: %v", err)
	}
	if f.Department != "lab" || f.Status != "in_lab" {
		t.Fatalf("unexpected keys %+v", f)
	}
	if f.Finalized == nil || *f.Finalized {
		t.Fatalf("expected finalized=false, got %v", f.Finalized)
	}
	if !f.CreatedFrom.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %s", f.CreatedFrom)
	}
	wantTo := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !f.CreatedTo.Equal(wantTo) {
		t.Fatalf("to = %s, want %s", f.CreatedTo, wantTo)
	}
	if f.Limit != 20 || f.Offset != 40 || !f.WithNeeds || f.WithoutNeeds {
		t.Fatalf("unexpected paging or needs %+v", f)
	}
}

func TestListFilterFromQueryRejectsBadParams(t *testing.T) {
	cases := map[string]url.Values{
		"finalized": {"finalized": {"perhaps"}},
		"from":      {"from": {"14/03/2026"}},
		"limit":     {"limit": {"-1"}},
		"needs":     {"needs": {"some"}},
	}
	for param, q := range cases {
		_, err := ListFilterFromQuery(q)
		var qe *queryError
		if !errors.As(err, &qe) {
			t.Fatalf("%s: expected queryError, got %v", param, err)
		}
		if qe.param != param {
			t.Fatalf("param = %q, want %q", qe.param, param)
		}
	}
}

func TestAuditFilterFromQuery(t *testing.T) {
	f, err := AuditFilterFromQuery(url.Values{
		"actor":  {"ana"},
		"action": {"finalize_request"},
		"order":  {"ASC"},
		"from":   {"2026-03-14T08:00:00Z"},
	})
	if err != nil {
		t.Fatalf("AuditFilterFromQuery: %v", err)
	}
	if f.Actor != "ana" || f.Action != audit.ActionFinalizeRequest || !f.Chronological {
		t.Fatalf("unexpected filter %+v", f)
	}
	if !f.From.Equal(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %s", f.From)
	}

	if _, err := AuditFilterFromQuery(url.Values{"action": {"teleport"}}); err == nil {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestFromAuditRecord(t *testing.T) {
	rec := &store.AuditRecord{
		ID:        7,
		RequestID: 3,
		Actor:     "ana",
		Action:    string(audit.ActionMoveDepartment),
		After:     json.RawMessage(`{"department":"lab"}`),
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	got := FromAuditRecord(rec)
	if got.CreatedAt != "2026-03-14T09:30:00.000Z" {
		t.Fatalf("created_at = %q", got.CreatedAt)
	}
	if string(got.After) != `{"department":"lab"}` {
		t.Fatalf("after = %s", got.After)
	}
	if FromAuditRecords(nil) == nil {
		t.Fatal("expected empty slice, not nil")
	}
}
