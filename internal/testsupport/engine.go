package testsupport

import (
	"context"
	"testing"

	"reqflow/internal/config"
	"reqflow/internal/store"
	"reqflow/internal/workflow"
)

// MustEngine builds a workflow engine over st using cfg's numbering and
// auditing settings.
func MustEngine(t testing.TB, cfg *config.Config, st *store.Store, opts ...workflow.Option) *workflow.Engine {
	t.Helper()

	engine, err := workflow.NewFromConfig(context.Background(), cfg, st, opts...)
	if err != nil {
		t.Fatalf("workflow.NewFromConfig: %v", err)
	}
	return engine
}
