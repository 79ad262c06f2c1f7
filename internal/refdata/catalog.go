package refdata

import (
	"fmt"
	"sort"
)

// Catalog resolves symbolic keys and numeric ids to reference rows.
// It is immutable once built and safe for concurrent use.
type Catalog struct {
	departments []Department
	statuses    []Status
	urgencies   []Urgency

	deptByKey    map[string]Department
	deptByID     map[int64]Department
	statusByKey  map[string]Status
	statusByID   map[int64]Status
	urgencyByKey map[string]Urgency
	urgencyByID  map[int64]Urgency
}

// NewCatalog indexes the provided rows. Every row must carry a database id and
// every key the workflow depends on must be present.
func NewCatalog(departments []Department, statuses []Status, urgencies []Urgency) (*Catalog, error) {
	c := &Catalog{
		deptByKey:    make(map[string]Department, len(departments)),
		deptByID:     make(map[int64]Department, len(departments)),
		statusByKey:  make(map[string]Status, len(statuses)),
		statusByID:   make(map[int64]Status, len(statuses)),
		urgencyByKey: make(map[string]Urgency, len(urgencies)),
		urgencyByID:  make(map[int64]Urgency, len(urgencies)),
	}
	for _, d := range departments {
		if d.ID == 0 {
			return nil, fmt.Errorf("department %q has no id", d.Key)
		}
		c.deptByKey[d.Key] = d
		c.deptByID[d.ID] = d
		c.departments = append(c.departments, d)
	}
	for _, s := range statuses {
		if s.ID == 0 {
			return nil, fmt.Errorf("status %q has no id", s.Key)
		}
		c.statusByKey[s.Key] = s
		c.statusByID[s.ID] = s
		c.statuses = append(c.statuses, s)
	}
	for _, u := range urgencies {
		if u.ID == 0 {
			return nil, fmt.Errorf("urgency %q has no id", u.Key)
		}
		c.urgencyByKey[u.Key] = u
		c.urgencyByID[u.ID] = u
		c.urgencies = append(c.urgencies, u)
	}
	for _, key := range requiredDepartments {
		if _, ok := c.deptByKey[key]; !ok {
			return nil, fmt.Errorf("reference data missing department %q", key)
		}
	}
	for _, key := range requiredStatuses {
		if _, ok := c.statusByKey[key]; !ok {
			return nil, fmt.Errorf("reference data missing status %q", key)
		}
	}
	for _, key := range requiredUrgencies {
		if _, ok := c.urgencyByKey[key]; !ok {
			return nil, fmt.Errorf("reference data missing urgency %q", key)
		}
	}
	sort.Slice(c.departments, func(i, j int) bool { return c.departments[i].ID < c.departments[j].ID })
	sort.Slice(c.statuses, func(i, j int) bool { return c.statuses[i].ID < c.statuses[j].ID })
	sort.Slice(c.urgencies, func(i, j int) bool { return c.urgencies[i].Priority < c.urgencies[j].Priority })
	return c, nil
}

// Departments lists every department ordered by id.
func (c *Catalog) Departments() []Department {
	return append([]Department(nil), c.departments...)
}

// ActiveDepartments lists departments that accept new requests.
func (c *Catalog) ActiveDepartments() []Department {
	out := make([]Department, 0, len(c.departments))
	for _, d := range c.departments {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

// Statuses lists every status ordered by id.
func (c *Catalog) Statuses() []Status {
	return append([]Status(nil), c.statuses...)
}

// Urgencies lists every urgency level ordered by ascending priority.
func (c *Catalog) Urgencies() []Urgency {
	return append([]Urgency(nil), c.urgencies...)
}

func (c *Catalog) Department(key string) (Department, bool) {
	d, ok := c.deptByKey[key]
	return d, ok
}

func (c *Catalog) DepartmentByID(id int64) (Department, bool) {
	d, ok := c.deptByID[id]
	return d, ok
}

func (c *Catalog) Status(key string) (Status, bool) {
	s, ok := c.statusByKey[key]
	return s, ok
}

func (c *Catalog) StatusByID(id int64) (Status, bool) {
	s, ok := c.statusByID[id]
	return s, ok
}

func (c *Catalog) Urgency(key string) (Urgency, bool) {
	u, ok := c.urgencyByKey[key]
	return u, ok
}

func (c *Catalog) UrgencyByID(id int64) (Urgency, bool) {
	u, ok := c.urgencyByID[id]
	return u, ok
}

// DeptID returns the id for a department key the catalog is known to hold.
// It panics on unknown keys; use Department for user-supplied input.
func (c *Catalog) DeptID(key string) int64 {
	d, ok := c.deptByKey[key]
	if !ok {
		panic(fmt.Sprintf("refdata: unknown department key %q", key))
	}
	return d.ID
}

// StatusID returns the id for a status key the catalog is known to hold.
// It panics on unknown keys; use Status for user-supplied input.
func (c *Catalog) StatusID(key string) int64 {
	s, ok := c.statusByKey[key]
	if !ok {
		panic(fmt.Sprintf("refdata: unknown status key %q", key))
	}
	return s.ID
}

// DeptKey returns the key for a department id, or "" when unknown.
func (c *Catalog) DeptKey(id int64) string {
	return c.deptByID[id].Key
}

// StatusKey returns the key for a status id, or "" when unknown.
func (c *Catalog) StatusKey(id int64) string {
	return c.statusByID[id].Key
}
