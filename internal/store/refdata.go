package store

import (
	"context"
	"fmt"

	"reqflow/internal/refdata"
)

// SeedReferenceData inserts the seed rows into any reference table that is
// still empty. Populated tables are left untouched.
func (s *Store) SeedReferenceData(ctx context.Context, seed refdata.Seed) error {
	ctx = ensureContext(ctx)
	return s.InTx(ctx, func(tx *Tx) error {
		if empty, err := tx.tableEmpty(ctx, "departments"); err != nil {
			return err
		} else if empty {
			for _, d := range seed.Departments {
				if _, err := tx.tx.ExecContext(ctx,
					`INSERT INTO departments (key, name, description, active) VALUES (?, ?, ?, ?)`,
					d.Key, d.Name, nullableString(d.Description), boolToInt(d.Active),
				); err != nil {
					return fmt.Errorf("seed department %q: %w", d.Key, err)
				}
			}
		}
		if empty, err := tx.tableEmpty(ctx, "statuses"); err != nil {
			return err
		} else if empty {
			for _, st := range seed.Statuses {
				if _, err := tx.tx.ExecContext(ctx,
					`INSERT INTO statuses (key, name, description, color) VALUES (?, ?, ?, ?)`,
					st.Key, st.Name, nullableString(st.Description), st.Color,
				); err != nil {
					return fmt.Errorf("seed status %q: %w", st.Key, err)
				}
			}
		}
		if empty, err := tx.tableEmpty(ctx, "urgency_levels"); err != nil {
			return err
		} else if empty {
			for _, u := range seed.Urgencies {
				if _, err := tx.tx.ExecContext(ctx,
					`INSERT INTO urgency_levels (key, name, description, priority, color) VALUES (?, ?, ?, ?, ?)`,
					u.Key, u.Name, nullableString(u.Description), u.Priority, u.Color,
				); err != nil {
					return fmt.Errorf("seed urgency %q: %w", u.Key, err)
				}
			}
		}
		return nil
	})
}

func (t *Tx) tableEmpty(ctx context.Context, table string) (bool, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table).Scan(&count); err != nil {
		return false, fmt.Errorf("count %s: %w", table, err)
	}
	return count == 0, nil
}

// Departments lists every department row.
func (s *Store) Departments(ctx context.Context) ([]refdata.Department, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id, key, name, COALESCE(description, ''), active FROM departments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()
	var out []refdata.Department
	for rows.Next() {
		var d refdata.Department
		var active int
		if err := rows.Scan(&d.ID, &d.Key, &d.Name, &d.Description, &active); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		d.Active = active != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// Statuses lists every status row.
func (s *Store) Statuses(ctx context.Context) ([]refdata.Status, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id, key, name, COALESCE(description, ''), color FROM statuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()
	var out []refdata.Status
	for rows.Next() {
		var st refdata.Status
		if err := rows.Scan(&st.ID, &st.Key, &st.Name, &st.Description, &st.Color); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Urgencies lists every urgency level.
func (s *Store) Urgencies(ctx context.Context) ([]refdata.Urgency, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id, key, name, COALESCE(description, ''), priority, color FROM urgency_levels ORDER BY priority`)
	if err != nil {
		return nil, fmt.Errorf("list urgency levels: %w", err)
	}
	defer rows.Close()
	var out []refdata.Urgency
	for rows.Next() {
		var u refdata.Urgency
		if err := rows.Scan(&u.ID, &u.Key, &u.Name, &u.Description, &u.Priority, &u.Color); err != nil {
			return nil, fmt.Errorf("scan urgency: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LoadCatalog reads every reference table and indexes it.
func (s *Store) LoadCatalog(ctx context.Context) (*refdata.Catalog, error) {
	departments, err := s.Departments(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := s.Statuses(ctx)
	if err != nil {
		return nil, err
	}
	urgencies, err := s.Urgencies(ctx)
	if err != nil {
		return nil, err
	}
	return refdata.NewCatalog(departments, statuses, urgencies)
}
