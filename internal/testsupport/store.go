package testsupport

import (
	"context"
	"testing"

	"reqflow/internal/config"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
)

// MustOpenStore opens a seeded store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	seed, err := refdata.DefaultSeed()
	if err != nil {
		t.Fatalf("refdata.DefaultSeed: %v", err)
	}
	if err := st.SeedReferenceData(context.Background(), seed); err != nil {
		t.Fatalf("SeedReferenceData: %v", err)
	}
	return st
}

// MustCatalog loads the reference catalog from a seeded store.
func MustCatalog(t testing.TB, st *store.Store) *refdata.Catalog {
	t.Helper()

	cat, err := st.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return cat
}
