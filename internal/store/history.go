package store

import (
	"context"
	"database/sql"
	"fmt"
)

const historyColumns = "id, request_id, from_dept_id, to_dept_id, from_status_id, to_status_id, need_id, comment, actor, created_at"

func scanHistoryEntry(scanner rowScanner) (*HistoryEntry, error) {
	var (
		entry      HistoryEntry
		fromDept   sql.NullInt64
		fromStatus sql.NullInt64
		needID     sql.NullInt64
		comment    sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&fromDept,
		&entry.ToDeptID,
		&fromStatus,
		&entry.ToStatusID,
		&needID,
		&comment,
		&entry.Actor,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	entry.FromDeptID = fromDept.Int64
	entry.FromStatusID = fromStatus.Int64
	entry.NeedID = needID.Int64
	entry.Comment = comment.String
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}

// AppendHistory writes a movement entry and assigns its id.
func (t *Tx) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	res, err := t.tx.ExecContext(ensureContext(ctx),
		`INSERT INTO history_entries (
            request_id, from_dept_id, to_dept_id, from_status_id, to_status_id,
            need_id, comment, actor, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		nullableID(entry.FromDeptID),
		entry.ToDeptID,
		nullableID(entry.FromStatusID),
		entry.ToStatusID,
		nullableID(entry.NeedID),
		nullableString(entry.Comment),
		entry.Actor,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("history id: %w", err)
	}
	entry.ID = id
	return nil
}

// History returns the movement entries of a request in the order they were
// appended.
func (s *Store) History(ctx context.Context, requestID int64) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+historyColumns+` FROM history_entries WHERE request_id = ? ORDER BY created_at, id`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var out []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
