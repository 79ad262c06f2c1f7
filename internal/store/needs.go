package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const needColumns = "id, request_id, description, analysis_type, required_params, completed, result, observations, created_by, created_at, completed_at, completed_by"

func scanNeed(scanner rowScanner) (*Need, error) {
	var (
		need         Need
		analysisType sql.NullString
		params       sql.NullString
		completed    int
		result       sql.NullString
		observations sql.NullString
		createdRaw   string
		completedRaw sql.NullString
		completedBy  sql.NullString
	)
	if err := scanner.Scan(
		&need.ID,
		&need.RequestID,
		&need.Description,
		&analysisType,
		&params,
		&completed,
		&result,
		&observations,
		&need.CreatedBy,
		&createdRaw,
		&completedRaw,
		&completedBy,
	); err != nil {
		return nil, err
	}
	need.AnalysisType = analysisType.String
	need.RequiredParams = params.String
	need.Completed = completed != 0
	need.Result = result.String
	need.Observations = observations.String
	if created, err := parseTimeString(createdRaw); err == nil {
		need.CreatedAt = created
	}
	need.CompletedAt = parseNullTime(completedRaw)
	need.CompletedBy = completedBy.String
	return &need, nil
}

func getNeed(ctx context.Context, q queryer, id int64) (*Need, error) {
	row := q.QueryRowContext(ctx, `SELECT `+needColumns+` FROM needs WHERE id = ?`, id)
	need, err := scanNeed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: need %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get need %d: %w", id, err)
	}
	return need, nil
}

// InsertNeed writes a new need and assigns its id.
func (t *Tx) InsertNeed(ctx context.Context, need *Need) error {
	res, err := t.tx.ExecContext(ensureContext(ctx),
		`INSERT INTO needs (
            request_id, description, analysis_type, required_params, completed,
            result, observations, created_by, created_at, completed_at, completed_by
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		need.RequestID,
		need.Description,
		nullableString(need.AnalysisType),
		nullableString(need.RequiredParams),
		boolToInt(need.Completed),
		nullableString(need.Result),
		nullableString(need.Observations),
		need.CreatedBy,
		formatTime(need.CreatedAt),
		nullableTime(need.CompletedAt),
		nullableString(need.CompletedBy),
	)
	if err != nil {
		return fmt.Errorf("insert need: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("need id: %w", err)
	}
	need.ID = id
	return nil
}

// GetNeed loads a need inside the transaction.
func (t *Tx) GetNeed(ctx context.Context, id int64) (*Need, error) {
	return getNeed(ensureContext(ctx), t.tx, id)
}

// UpdateNeed persists every mutable column of a need.
func (t *Tx) UpdateNeed(ctx context.Context, need *Need) error {
	res, err := t.tx.ExecContext(ensureContext(ctx),
		`UPDATE needs
         SET description = ?, analysis_type = ?, required_params = ?, completed = ?,
             result = ?, observations = ?, completed_at = ?, completed_by = ?
         WHERE id = ?`,
		need.Description,
		nullableString(need.AnalysisType),
		nullableString(need.RequiredParams),
		boolToInt(need.Completed),
		nullableString(need.Result),
		nullableString(need.Observations),
		nullableTime(need.CompletedAt),
		nullableString(need.CompletedBy),
		need.ID,
	)
	if err != nil {
		return fmt.Errorf("update need %d: %w", need.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: need %d", ErrNotFound, need.ID)
	}
	return nil
}

// DeleteNeed removes a need row.
func (t *Tx) DeleteNeed(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ensureContext(ctx), `DELETE FROM needs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete need %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: need %d", ErrNotFound, id)
	}
	return nil
}

// GetNeed loads a need by id.
func (s *Store) GetNeed(ctx context.Context, id int64) (*Need, error) {
	return getNeed(ensureContext(ctx), s.db, id)
}

// ListNeeds returns needs matching filter, oldest first.
func (s *Store) ListNeeds(ctx context.Context, filter NeedFilter) ([]*Need, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.RequestID != 0 {
		clauses = append(clauses, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.Completed != nil {
		clauses = append(clauses, "completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	query := `SELECT ` + needColumns + ` FROM needs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list needs: %w", err)
	}
	defer rows.Close()
	var out []*Need
	for rows.Next() {
		need, err := scanNeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan need: %w", err)
		}
		out = append(out, need)
	}
	return out, rows.Err()
}
