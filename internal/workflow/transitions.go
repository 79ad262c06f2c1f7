package workflow

import (
	"fmt"

	"reqflow/internal/refdata"
)

// Any matches every department or status in a transition rule.
const Any = "*"

// Rule maps a request position and a target department to the status the
// request takes on arrival. Allowed=false rejects the move.
type Rule struct {
	Dept     string
	Status   string
	Target   string
	Result   string
	Finalize bool
	Allowed  bool
	Reason   string
}

// Outcome is the resolved effect of a move.
type Outcome struct {
	Status   string
	Finalize bool
	Allowed  bool
	Reason   string
}

type ruleKey struct {
	dept, status, target string
}

// Table resolves moves. Lookups prefer the most specific rule: exact
// department and status, then department only, then status only, then the
// target alone.
type Table struct {
	rules map[ruleKey]Outcome
}

// DefaultRules returns the canonical routing table.
func DefaultRules() []Rule {
	return []Rule{
		{Dept: Any, Status: Any, Target: refdata.DeptWarehouse, Result: refdata.StatusInProcess, Allowed: true},
		{Dept: Any, Status: Any, Target: refdata.DeptLab, Result: refdata.StatusInLab, Allowed: true},
		{Dept: Any, Status: Any, Target: refdata.DeptTechOffice, Result: refdata.StatusReturnedToTechOffice, Allowed: true},
		{Dept: Any, Status: Any, Target: refdata.DeptShipping, Result: refdata.StatusCompleted, Finalize: true, Allowed: true},
		{Dept: Any, Status: refdata.StatusRejected, Target: refdata.DeptShipping, Allowed: false, Reason: "rejected requests cannot be shipped"},
	}
}

// NewTable builds a table and checks every key against catalog so a typo
// fails at startup rather than on the first request.
func NewTable(catalog *refdata.Catalog, rules []Rule) (*Table, error) {
	t := &Table{rules: make(map[ruleKey]Outcome, len(rules))}
	for _, r := range rules {
		if r.Dept != Any {
			if _, ok := catalog.Department(r.Dept); !ok {
				return nil, fmt.Errorf("transition rule: unknown department %q", r.Dept)
			}
		}
		if r.Status != Any {
			if _, ok := catalog.Status(r.Status); !ok {
				return nil, fmt.Errorf("transition rule: unknown status %q", r.Status)
			}
		}
		if _, ok := catalog.Department(r.Target); !ok {
			return nil, fmt.Errorf("transition rule: unknown target department %q", r.Target)
		}
		if r.Allowed {
			if _, ok := catalog.Status(r.Result); !ok {
				return nil, fmt.Errorf("transition rule: unknown result status %q", r.Result)
			}
		}
		key := ruleKey{r.Dept, r.Status, r.Target}
		if _, dup := t.rules[key]; dup {
			return nil, fmt.Errorf("transition rule: duplicate rule %s/%s->%s", r.Dept, r.Status, r.Target)
		}
		t.rules[key] = Outcome{Status: r.Result, Finalize: r.Finalize, Allowed: r.Allowed, Reason: r.Reason}
	}
	return t, nil
}

// Resolve returns the outcome of moving a request at dept/status to target.
// ok is false when no rule covers the move.
func (t *Table) Resolve(dept, status, target string) (Outcome, bool) {
	for _, key := range []ruleKey{
		{dept, status, target},
		{dept, Any, target},
		{Any, status, target},
		{Any, Any, target},
	} {
		if out, ok := t.rules[key]; ok {
			return out, true
		}
	}
	return Outcome{}, false
}

// Permits reports whether a move to target is allowed. A move no rule covers
// is permitted; only explicit Allowed=false rules reject.
func (t *Table) Permits(dept, status, target string) (bool, string) {
	out, ok := t.Resolve(dept, status, target)
	if !ok {
		return true, ""
	}
	return out.Allowed, out.Reason
}
