package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const outboxColumns = "id, kind, request_id, payload_json, attempts, next_attempt_at, delivered_at, failed, last_error, created_at"

func scanOutbox(scanner rowScanner) (*OutboxMessage, error) {
	var (
		msg          OutboxMessage
		payload      string
		nextRaw      string
		deliveredRaw sql.NullString
		failed       int
		lastErr      sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(
		&msg.ID,
		&msg.Kind,
		&msg.RequestID,
		&payload,
		&msg.Attempts,
		&nextRaw,
		&deliveredRaw,
		&failed,
		&lastErr,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	msg.Payload = []byte(payload)
	if next, err := parseTimeString(nextRaw); err == nil {
		msg.NextAttemptAt = next
	}
	msg.DeliveredAt = parseNullTime(deliveredRaw)
	msg.Failed = failed != 0
	msg.LastError = lastErr.String
	if created, err := parseTimeString(createdRaw); err == nil {
		msg.CreatedAt = created
	}
	return &msg, nil
}

// EnqueueOutbox records a notification intent as part of the transaction.
func (t *Tx) EnqueueOutbox(ctx context.Context, msg *OutboxMessage) error {
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = msg.CreatedAt
	}
	if _, err := t.tx.ExecContext(ensureContext(ctx),
		`INSERT INTO outbox (id, kind, request_id, payload_json, attempts, next_attempt_at, created_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)`,
		msg.ID,
		msg.Kind,
		msg.RequestID,
		string(msg.Payload),
		formatTime(msg.NextAttemptAt),
		formatTime(msg.CreatedAt),
	); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

// DueOutbox returns undelivered, non-failed messages whose next attempt is due.
func (s *Store) DueOutbox(ctx context.Context, now time.Time, limit int) ([]*OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+outboxColumns+` FROM outbox
         WHERE delivered_at IS NULL AND failed = 0 AND next_attempt_at <= ?
         ORDER BY next_attempt_at, created_at, rowid
         LIMIT ?`,
		formatTime(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox: %w", err)
	}
	defer rows.Close()
	var out []*OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// ListOutbox returns the messages recorded for a request, oldest first.
func (s *Store) ListOutbox(ctx context.Context, requestID int64) ([]*OutboxMessage, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+outboxColumns+` FROM outbox WHERE request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()
	var out []*OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkOutboxDelivered records a successful delivery.
func (s *Store) MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE outbox SET delivered_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
		formatTime(at), id,
	); err != nil {
		return fmt.Errorf("mark outbox %s delivered: %w", id, err)
	}
	return nil
}

// MarkOutboxAttemptFailed records a failed delivery. When giveUp is true the
// message is parked and never retried.
func (s *Store) MarkOutboxAttemptFailed(ctx context.Context, id string, cause string, next time.Time, giveUp bool) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?, failed = ? WHERE id = ?`,
		cause, formatTime(next), boolToInt(giveUp), id,
	); err != nil {
		return fmt.Errorf("mark outbox %s failed: %w", id, err)
	}
	return nil
}

// PendingOutboxCount reports how many messages still await delivery.
func (s *Store) PendingOutboxCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM outbox WHERE delivered_at IS NULL AND failed = 0`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return n, nil
}
