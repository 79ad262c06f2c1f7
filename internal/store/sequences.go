package store

import (
	"context"
	"fmt"
)

// NextSequence atomically increments and returns the counter for day. The
// first call for a day returns 1. Running inside the creating transaction
// keeps the counter and the request row in lockstep: a rolled back creation
// also rolls back its sequence value.
func (t *Tx) NextSequence(ctx context.Context, day string) (int, error) {
	var next int
	err := t.tx.QueryRowContext(ensureContext(ctx),
		`INSERT INTO request_sequences (day, counter) VALUES (?, 1)
         ON CONFLICT(day) DO UPDATE SET counter = counter + 1
         RETURNING counter`,
		day,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", day, err)
	}
	return next, nil
}

// CurrentSequence reports the last value handed out for day, or 0.
func (s *Store) CurrentSequence(ctx context.Context, day string) (int, error) {
	var last int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COALESCE((SELECT counter FROM request_sequences WHERE day = ?), 0)`, day,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read sequence for %s: %w", day, err)
	}
	return last, nil
}
