package refdata_test

import (
	"strings"
	"testing"

	"reqflow/internal/refdata"
)

func withIDs(seed refdata.Seed) refdata.Seed {
	for i := range seed.Departments {
		seed.Departments[i].ID = int64(i + 1)
	}
	for i := range seed.Statuses {
		seed.Statuses[i].ID = int64(i + 1)
	}
	for i := range seed.Urgencies {
		seed.Urgencies[i].ID = int64(i + 1)
	}
	return seed
}

func TestDefaultSeedCoversRequiredKeys(t *testing.T) {
	seed, err := refdata.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed returned error: %v", err)
	}
	if len(seed.Departments) != 4 {
		t.Fatalf("expected 4 departments, got %d", len(seed.Departments))
	}
	if len(seed.Statuses) != 9 {
		t.Fatalf("expected 9 statuses, got %d", len(seed.Statuses))
	}
	if len(seed.Urgencies) != 4 {
		t.Fatalf("expected 4 urgencies, got %d", len(seed.Urgencies))
	}
}

func TestParseSeedRejectsMissingKeys(t *testing.T) {
	doc := []byte(`
departments:
  - key: warehouse
    name: Almacén
statuses: []
urgencies: []
`)
	_, err := refdata.ParseSeed(doc)
	if err == nil || !strings.Contains(err.Error(), "shipping") {
		t.Fatalf("expected missing shipping error, got %v", err)
	}
}

func TestParseSeedRejectsDuplicatePriorities(t *testing.T) {
	seed, err := refdata.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	doc := []byte(`
departments:
  - {key: shipping}
  - {key: warehouse}
  - {key: lab}
  - {key: tech_office}
statuses:
` + statusLines(seed) + `
urgencies:
  - {key: low, priority: 1}
  - {key: medium, priority: 1}
  - {key: high, priority: 3}
  - {key: critical, priority: 4}
`)
	if _, err := refdata.ParseSeed(doc); err == nil || !strings.Contains(err.Error(), "priority") {
		t.Fatalf("expected duplicate priority error, got %v", err)
	}
}

func statusLines(seed refdata.Seed) string {
	var b strings.Builder
	for _, s := range seed.Statuses {
		b.WriteString("  - {key: ")
		b.WriteString(s.Key)
		b.WriteString("}\n")
	}
	return b.String()
}

func TestCatalogResolvesKeysAndIDs(t *testing.T) {
	seed, err := refdata.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	seed = withIDs(seed)
	cat, err := refdata.NewCatalog(seed.Departments, seed.Statuses, seed.Urgencies)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	lab, ok := cat.Department(refdata.DeptLab)
	if !ok {
		t.Fatal("expected lab department")
	}
	if byID, ok := cat.DepartmentByID(lab.ID); !ok || byID.Key != refdata.DeptLab {
		t.Fatalf("DepartmentByID(%d) = %+v", lab.ID, byID)
	}
	if cat.DeptKey(cat.DeptID(refdata.DeptWarehouse)) != refdata.DeptWarehouse {
		t.Fatal("expected warehouse key round trip")
	}
	if cat.StatusKey(cat.StatusID(refdata.StatusInLab)) != refdata.StatusInLab {
		t.Fatal("expected in_lab key round trip")
	}
	if st, ok := cat.StatusByID(cat.StatusID(refdata.StatusPending)); !ok || st.Key != refdata.StatusPending {
		t.Fatalf("StatusByID returned %+v", st)
	}
	if _, ok := cat.Status("bogus"); ok {
		t.Fatal("expected unknown status to be absent")
	}

	urgencies := cat.Urgencies()
	for i := 1; i < len(urgencies); i++ {
		if urgencies[i-1].Priority >= urgencies[i].Priority {
			t.Fatalf("expected ascending priorities, got %+v", urgencies)
		}
	}
}

func TestNewCatalogRequiresIDs(t *testing.T) {
	seed, err := refdata.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed: %v", err)
	}
	if _, err := refdata.NewCatalog(seed.Departments, seed.Statuses, seed.Urgencies); err == nil {
		t.Fatal("expected error for rows without ids")
	}
}
