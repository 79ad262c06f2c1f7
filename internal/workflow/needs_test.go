package workflow_test

import (
	"context"
	"strings"
	"testing"

	"reqflow/internal/audit"
	"reqflow/internal/history"
	"reqflow/internal/metrics"
	"reqflow/internal/refdata"
	"reqflow/internal/workflow"
)

func TestNeedScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.create(t, refdata.DeptWarehouse)
	}
	req := h.create(t, refdata.DeptLab)
	if req.Number != "SOL-20260314-0004" {
		t.Fatalf("expected fourth number of the day, got %s", req.Number)
	}

	need, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{
		Description:  "Two litres of solvent for the stability test",
		AnalysisType: "stability",
		Actor:        "marta",
	})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}
	parent := h.get(t, req.ID)
	expectPosition(t, &parent.Request, refdata.DeptWarehouse, refdata.StatusInProcess)
	entries := h.history(t, req.ID)
	last := entries[len(entries)-1]
	if !strings.Contains(last.Comment, "Two litres of solvent") || last.NeedID != need.ID {
		t.Fatalf("history entry should reference the need, got %+v", last)
	}

	beforeComplete := len(entries)
	if _, err := h.engine.CompleteNeed(ctx, need.ID, "Solvent delivered to the lab", "", "luis"); err != nil {
		t.Fatalf("CompleteNeed: %v", err)
	}
	parent = h.get(t, req.ID)
	expectPosition(t, &parent.Request, refdata.DeptWarehouse, refdata.StatusInProcess)
	if got := len(h.history(t, req.ID)); got != beforeComplete+1 {
		t.Fatalf("completion must append history even without a department change: %d -> %d", beforeComplete, got)
	}

	if _, err := h.engine.Finalize(ctx, req.ID, "", "luis"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	_, err = h.engine.TransitionState(ctx, req.ID, workflow.TransitionInput{Status: refdata.StatusInLab, Actor: "luis"})
	expectErr(t, err, workflow.ErrInvalidTransition)
}

func TestCreateNeedOutsideLabRoutesToLab(t *testing.T) {
	for _, dept := range []string{refdata.DeptWarehouse, refdata.DeptTechOffice} {
		t.Run(dept, func(t *testing.T) {
			h := newHarness(t)
			req := h.create(t, dept)
			if _, err := h.engine.CreateNeed(context.Background(), req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"}); err != nil {
				t.Fatalf("CreateNeed: %v", err)
			}
			parent := h.get(t, req.ID)
			expectPosition(t, &parent.Request, refdata.DeptLab, refdata.StatusInLab)
		})
	}
}

func TestCreateNeedValidation(t *testing.T) {
	h := newHarness(t)
	req := h.create(t, refdata.DeptWarehouse)
	_, err := h.engine.CreateNeed(context.Background(), req.ID, workflow.NeedInput{Description: "short", Actor: "ana"})
	expectErr(t, err, workflow.ErrValidation)
	_, err = h.engine.CreateNeed(context.Background(), 777, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
	expectErr(t, err, workflow.ErrNotFound)
	if len(h.history(t, req.ID)) != 1 {
		t.Fatal("failed need creation must not move the request")
	}
}

func TestCompleteNeedAlwaysRoutesToWarehouse(t *testing.T) {
	for _, dept := range []string{refdata.DeptLab, refdata.DeptWarehouse, refdata.DeptTechOffice} {
		t.Run(dept, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			req := h.create(t, refdata.DeptWarehouse)
			need, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
			if err != nil {
				t.Fatalf("CreateNeed: %v", err)
			}
			if _, err := h.engine.RouteToDepartment(ctx, req.ID, dept, "", "ana"); err != nil {
				t.Fatalf("RouteToDepartment: %v", err)
			}

			done, err := h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1200 cP at 25C", "Within spec", "marta")
			if err != nil {
				t.Fatalf("CompleteNeed: %v", err)
			}
			if !done.Completed || done.CompletedAt == nil || done.Result == "" || done.Observations != "Within spec" {
				t.Fatalf("unexpected completed need %+v", done)
			}
			parent := h.get(t, req.ID)
			expectPosition(t, &parent.Request, refdata.DeptWarehouse, refdata.StatusInProcess)

			_, err = h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1200 cP at 25C", "", "marta")
			expectErr(t, err, workflow.ErrAlreadyCompleted)
		})
	}
}

func TestReopenNeedRoutesToLab(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.create(t, refdata.DeptWarehouse)
	need, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}

	_, err = h.engine.ReopenNeed(ctx, need.ID, "Sample was contaminated", "ana")
	expectErr(t, err, workflow.ErrNotCompleted)

	if _, err := h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1200 cP at 25C", "First pass", "marta"); err != nil {
		t.Fatalf("CompleteNeed: %v", err)
	}
	_, err = h.engine.ReopenNeed(ctx, need.ID, "bad", "ana")
	expectErr(t, err, workflow.ErrValidation)

	reopened, err := h.engine.ReopenNeed(ctx, need.ID, "Sample was contaminated", "ana")
	if err != nil {
		t.Fatalf("ReopenNeed: %v", err)
	}
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Fatalf("expected open need, got %+v", reopened)
	}
	if reopened.Observations != "First pass\n\n[REOPENED] Sample was contaminated" {
		t.Fatalf("unexpected observations %q", reopened.Observations)
	}
	parent := h.get(t, req.ID)
	expectPosition(t, &parent.Request, refdata.DeptLab, refdata.StatusInLab)

	records, err := h.engine.Trail().ForRequest(ctx, req.ID, audit.Filter{Action: audit.ActionReopenNeed})
	if err != nil {
		t.Fatalf("ForRequest: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one reopen record, got %d", len(records))
	}
}

func TestUpdateNeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.create(t, refdata.DeptWarehouse)
	need, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}
	before := len(h.history(t, req.ID))

	params := "25C, rotor 3"
	updated, err := h.engine.UpdateNeed(ctx, need.ID, workflow.NeedUpdate{RequiredParams: &params, Actor: "ana"})
	if err != nil {
		t.Fatalf("UpdateNeed: %v", err)
	}
	if updated.RequiredParams != params || updated.Description != "Measure the viscosity" {
		t.Fatalf("unexpected need %+v", updated)
	}
	if len(h.history(t, req.ID)) != before {
		t.Fatal("editing a need must not move the request")
	}

	if _, err := h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1200 cP at 25C", "", "marta"); err != nil {
		t.Fatalf("CompleteNeed: %v", err)
	}
	_, err = h.engine.UpdateNeed(ctx, need.ID, workflow.NeedUpdate{RequiredParams: &params, Actor: "ana"})
	expectErr(t, err, workflow.ErrAlreadyCompleted)
}

func TestDeleteNeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.create(t, refdata.DeptWarehouse)
	open, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}
	closed, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the density", Actor: "ana"})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}
	if _, err := h.engine.CompleteNeed(ctx, closed.ID, "Density 1.12 g/ml", "", "marta"); err != nil {
		t.Fatalf("CompleteNeed: %v", err)
	}

	expectErr(t, h.engine.DeleteNeed(ctx, closed.ID, "ana"), workflow.ErrCannotDeleteCompleted)
	if err := h.engine.DeleteNeed(ctx, open.ID, "ana"); err != nil {
		t.Fatalf("DeleteNeed: %v", err)
	}
	_, err = h.engine.GetNeed(ctx, open.ID)
	expectErr(t, err, workflow.ErrNotFound)
	expectErr(t, h.engine.DeleteNeed(ctx, open.ID, "ana"), workflow.ErrNotFound)

	needs, err := h.engine.ListNeeds(ctx, workflow.NeedFilter{RequestID: req.ID})
	if err != nil {
		t.Fatalf("ListNeeds: %v", err)
	}
	if len(needs) != 1 || needs[0].ID != closed.ID {
		t.Fatalf("expected only the completed need to remain, got %+v", needs)
	}

	records, err := h.engine.Trail().ForRequest(ctx, req.ID, audit.Filter{Action: audit.ActionDeleteNeed})
	if err != nil {
		t.Fatalf("ForRequest: %v", err)
	}
	if len(records) != 1 || !strings.Contains(records[0].Description, "Measure the viscosity") {
		t.Fatalf("expected a delete_need record naming the need, got %+v", records)
	}
}

func TestTimelineMergesNeedLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.create(t, refdata.DeptWarehouse)
	need, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}
	if _, err := h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1200 cP at 25C", "", "marta"); err != nil {
		t.Fatalf("CompleteNeed: %v", err)
	}

	detail := h.get(t, req.ID)
	var kinds []history.Kind
	for _, item := range detail.Timeline {
		kinds = append(kinds, item.Kind)
	}
	want := []history.Kind{
		history.KindMovement,
		history.KindNeedCreated,
		history.KindMovement,
		history.KindNeedCompleted,
		history.KindMovement,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
	if len(detail.Needs) != 1 || !detail.Needs[0].Completed || detail.Needs[0].CompletedBy != "marta" {
		t.Fatalf("unexpected needs %+v", detail.Needs)
	}

	created, raised := detail.Timeline[1], detail.Timeline[2]
	if created.FromDept != refdata.DeptWarehouse || created.ToDept != refdata.DeptLab || created.Actor != "ana" {
		t.Fatalf("need_created should match the move to lab, got %+v", created)
	}
	if raised.FromDept != created.FromDept || raised.ToDept != created.ToDept {
		t.Fatalf("need_created %+v disagrees with movement %+v", created, raised)
	}
	completed, returned := detail.Timeline[3], detail.Timeline[4]
	if completed.FromDept != refdata.DeptLab || completed.ToDept != refdata.DeptWarehouse || completed.ToStatus != refdata.StatusInProcess {
		t.Fatalf("need_completed should match the move to warehouse, got %+v", completed)
	}
	if completed.Actor != "marta" || returned.Actor != "marta" {
		t.Fatalf("completion should credit marta, got %q and %q", completed.Actor, returned.Actor)
	}
}

func TestReopenClearsCompletedBy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.create(t, refdata.DeptWarehouse)
	need, err := h.engine.CreateNeed(ctx, req.ID, workflow.NeedInput{Description: "Measure the viscosity", Actor: "ana"})
	if err != nil {
		t.Fatalf("CreateNeed: %v", err)
	}
	if _, err := h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1200 cP at 25C", "", "marta"); err != nil {
		t.Fatalf("CompleteNeed: %v", err)
	}
	reopened, err := h.engine.ReopenNeed(ctx, need.ID, "Sample was contaminated", "luis")
	if err != nil {
		t.Fatalf("ReopenNeed: %v", err)
	}
	if reopened.CompletedBy != "" {
		t.Fatalf("expected completed_by cleared, got %q", reopened.CompletedBy)
	}
	if _, err := h.engine.CompleteNeed(ctx, need.ID, "Viscosity 1180 cP at 25C", "", "luis"); err != nil {
		t.Fatalf("CompleteNeed again: %v", err)
	}

	items, err := h.engine.Timeline(ctx, req.ID, history.Chronological)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	var completions []history.Item
	for _, item := range items {
		if item.Kind == history.KindNeedCompleted {
			completions = append(completions, item)
		}
	}
	if len(completions) != 1 {
		t.Fatalf("expected one completion item, got %+v", completions)
	}
	if c := completions[0]; c.Actor != "luis" || c.FromDept != refdata.DeptLab || c.ToDept != refdata.DeptWarehouse {
		t.Fatalf("completion item should reflect the latest completion, got %+v", c)
	}
}

func TestNeedLookupFailureIsObserved(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, workflow.WithMetrics(m))

	_, err := h.engine.CompleteNeed(context.Background(), 9999, "Viscosity 1200 cP at 25C", "", "marta")
	expectErr(t, err, workflow.ErrNotFound)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var samples uint64
	var notFound float64
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] != "complete need" {
				continue
			}
			switch mf.GetName() {
			case "reqflow_operation_duration_seconds":
				samples += metric.GetHistogram().GetSampleCount()
			case "reqflow_operation_errors_total":
				if labels["kind"] == workflow.KindNotFound {
					notFound += metric.GetCounter().GetValue()
				}
			}
		}
	}
	if samples != 1 || notFound != 1 {
		t.Fatalf("expected one observation with kind not_found, got samples=%d not_found=%v", samples, notFound)
	}
}
