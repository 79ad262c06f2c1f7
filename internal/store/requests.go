package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const requestColumns = "r.id, r.number, r.requester, r.material_name, r.lot, r.supplier, r.article_code, r.comments, r.destination_dept_id, r.current_dept_id, r.urgency_id, r.status_id, r.finalized, r.finalized_at, r.created_by, r.created_at, r.updated_at"

func scanRequest(scanner rowScanner) (*Request, error) {
	var (
		req         Request
		comments    sql.NullString
		finalized   int
		finalizedAt sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&req.ID,
		&req.Number,
		&req.Requester,
		&req.MaterialName,
		&req.Lot,
		&req.Supplier,
		&req.ArticleCode,
		&comments,
		&req.DestinationDeptID,
		&req.CurrentDeptID,
		&req.UrgencyID,
		&req.StatusID,
		&finalized,
		&finalizedAt,
		&req.CreatedBy,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	req.Comments = comments.String
	req.Finalized = finalized != 0
	req.FinalizedAt = parseNullTime(finalizedAt)
	if created, err := parseTimeString(createdRaw); err == nil {
		req.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		req.UpdatedAt = updated
	}
	return &req, nil
}

func insertRequest(ctx context.Context, q queryer, req *Request) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO requests (
            number, requester, material_name, lot, supplier, article_code, comments,
            destination_dept_id, current_dept_id, urgency_id, status_id,
            finalized, finalized_at, created_by, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Number,
		req.Requester,
		req.MaterialName,
		req.Lot,
		req.Supplier,
		req.ArticleCode,
		nullableString(req.Comments),
		req.DestinationDeptID,
		req.CurrentDeptID,
		req.UrgencyID,
		req.StatusID,
		boolToInt(req.Finalized),
		nullableTime(req.FinalizedAt),
		req.CreatedBy,
		formatTime(req.CreatedAt),
		formatTime(req.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request number %s already exists", ErrConflict, req.Number)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	req.ID = id
	return nil
}

func getRequest(ctx context.Context, q queryer, id int64) (*Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests r WHERE r.id = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	return req, nil
}

func updateRequestState(ctx context.Context, q queryer, req *Request) error {
	res, err := q.ExecContext(ctx,
		`UPDATE requests
         SET current_dept_id = ?, status_id = ?, urgency_id = ?, comments = ?,
             finalized = ?, finalized_at = ?, updated_at = ?
         WHERE id = ?`,
		req.CurrentDeptID,
		req.StatusID,
		req.UrgencyID,
		nullableString(req.Comments),
		boolToInt(req.Finalized),
		nullableTime(req.FinalizedAt),
		formatTime(req.UpdatedAt),
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("update request %d: %w", req.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: request %d", ErrNotFound, req.ID)
	}
	return nil
}

// InsertRequest writes a new request and assigns its id.
func (t *Tx) InsertRequest(ctx context.Context, req *Request) error {
	return insertRequest(ensureContext(ctx), t.tx, req)
}

// GetRequest loads a request inside the transaction.
func (t *Tx) GetRequest(ctx context.Context, id int64) (*Request, error) {
	return getRequest(ensureContext(ctx), t.tx, id)
}

// UpdateRequest persists the mutable state of a request: department, status,
// urgency, comments, and finalization.
func (t *Tx) UpdateRequest(ctx context.Context, req *Request) error {
	return updateRequestState(ensureContext(ctx), t.tx, req)
}

// GetRequest loads a request by id. Missing rows return ErrNotFound.
func (s *Store) GetRequest(ctx context.Context, id int64) (*Request, error) {
	return getRequest(ensureContext(ctx), s.db, id)
}

// GetRequestByNumber loads a request by its human-facing number.
func (s *Store) GetRequestByNumber(ctx context.Context, number string) (*Request, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+requestColumns+` FROM requests r WHERE r.number = ?`, number)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, number)
		}
		return nil, fmt.Errorf("get request %s: %w", number, err)
	}
	return req, nil
}

func requestWhere(filter RequestFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.CurrentDeptID != 0 {
		clauses = append(clauses, "r.current_dept_id = ?")
		args = append(args, filter.CurrentDeptID)
	}
	if filter.RelatedDeptID != 0 {
		clauses = append(clauses, `(r.current_dept_id = ? OR r.destination_dept_id = ? OR EXISTS (
            SELECT 1 FROM history_entries h WHERE h.request_id = r.id AND (h.to_dept_id = ? OR h.from_dept_id = ?)))`)
		args = append(args, filter.RelatedDeptID, filter.RelatedDeptID, filter.RelatedDeptID, filter.RelatedDeptID)
	}
	if filter.StatusID != 0 {
		clauses = append(clauses, "r.status_id = ?")
		args = append(args, filter.StatusID)
	}
	if filter.UrgencyID != 0 {
		clauses = append(clauses, "r.urgency_id = ?")
		args = append(args, filter.UrgencyID)
	}
	if filter.Finalized != nil {
		clauses = append(clauses, "r.finalized = ?")
		args = append(args, boolToInt(*filter.Finalized))
	}
	if !filter.CreatedFrom.IsZero() {
		clauses = append(clauses, "r.created_at >= ?")
		args = append(args, formatTime(filter.CreatedFrom))
	}
	if !filter.CreatedTo.IsZero() {
		clauses = append(clauses, "r.created_at < ?")
		args = append(args, formatTime(filter.CreatedTo))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := likePattern(term)
		columns := []string{"r.number", "r.requester", "r.material_name", "r.lot", "r.supplier", "r.article_code"}
		parts := make([]string, 0, len(columns))
		for _, col := range columns {
			parts = append(parts, col+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	if filter.WithNeeds {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM needs n WHERE n.request_id = r.id)")
	}
	if filter.WithoutNeeds {
		clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM needs n WHERE n.request_id = r.id)")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListRequests returns requests matching filter ordered by urgency priority
// (highest first) then creation time (newest first).
func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]*Request, error) {
	ctx = ensureContext(ctx)
	where, args := requestWhere(filter)
	query := `SELECT ` + requestColumns + `
        FROM requests r
        JOIN urgency_levels u ON u.id = r.urgency_id` + where + `
        ORDER BY u.priority DESC, r.created_at DESC, r.id DESC
        LIMIT ? OFFSET ?`
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, clampLimit(filter.Limit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// RequestStats counts requests matching filter by status and current department.
func (s *Store) RequestStats(ctx context.Context, filter RequestFilter) (RequestStats, error) {
	ctx = ensureContext(ctx)
	where, args := requestWhere(filter)
	stats := RequestStats{
		ByStatus:     make(map[int64]int),
		ByDepartment: make(map[int64]int),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(r.finalized), 0) FROM requests r`+where, args...,
	).Scan(&stats.Total, &stats.Finalized); err != nil {
		return RequestStats{}, fmt.Errorf("count requests: %w", err)
	}

	group := func(column string, dst map[int64]int) error {
		rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(1) FROM requests r`+where+` GROUP BY `+column, args...)
		if err != nil {
			return fmt.Errorf("group requests by %s: %w", column, err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				key   int64
				count int
			)
			if err := rows.Scan(&key, &count); err != nil {
				return fmt.Errorf("scan request group: %w", err)
			}
			dst[key] = count
		}
		return rows.Err()
	}
	if err := group("r.status_id", stats.ByStatus); err != nil {
		return RequestStats{}, err
	}
	if err := group("r.current_dept_id", stats.ByDepartment); err != nil {
		return RequestStats{}, err
	}
	return stats, nil
}

// TouchRequest bumps updated_at without changing any other column.
func (t *Tx) TouchRequest(ctx context.Context, id int64, at time.Time) error {
	if _, err := t.tx.ExecContext(ensureContext(ctx), `UPDATE requests SET updated_at = ? WHERE id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("touch request %d: %w", id, err)
	}
	return nil
}
