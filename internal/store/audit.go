package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const auditColumns = "id, request_id, actor, action, description, before_json, after_json, ip_address, user_agent, metadata_json, created_at"

func scanAuditRecord(scanner rowScanner) (*AuditRecord, error) {
	var (
		rec        AuditRecord
		before     sql.NullString
		after      sql.NullString
		ip         sql.NullString
		userAgent  sql.NullString
		metadata   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.Actor,
		&rec.Action,
		&rec.Description,
		&before,
		&after,
		&ip,
		&userAgent,
		&metadata,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	rec.Before = rawJSON(before)
	rec.After = rawJSON(after)
	rec.IPAddress = ip.String
	rec.UserAgent = userAgent.String
	rec.Metadata = rawJSON(metadata)
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return &rec, nil
}

func appendAudit(ctx context.Context, q queryer, rec *AuditRecord) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO audit_records (
            request_id, actor, action, description, before_json, after_json,
            ip_address, user_agent, metadata_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Actor,
		rec.Action,
		rec.Description,
		nullableJSON(rec.Before),
		nullableJSON(rec.After),
		nullableString(rec.IPAddress),
		nullableString(rec.UserAgent),
		nullableJSON(rec.Metadata),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit record id: %w", err)
	}
	rec.ID = id
	return nil
}

// AppendAudit writes an audit record as part of the transaction.
func (t *Tx) AppendAudit(ctx context.Context, rec *AuditRecord) error {
	return appendAudit(ensureContext(ctx), t.tx, rec)
}

// AppendAudit writes a standalone audit record for actions that do not mutate
// a request, such as views and downloads.
func (s *Store) AppendAudit(ctx context.Context, rec *AuditRecord) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return appendAudit(ctx, s.db, rec)
	})
}

func auditWhere(filter AuditFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.RequestID != 0 {
		clauses = append(clauses, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, filter.Action)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, formatTime(filter.To))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListAudit returns audit records matching filter, newest first unless
// filter.Ascending is set.
func (s *Store) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	where, args := auditWhere(filter)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, clampLimit(filter.Limit), offset)
	order := " ORDER BY created_at DESC, id DESC"
	if filter.Ascending {
		order = " ORDER BY created_at, id"
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+auditColumns+` FROM audit_records`+where+order+` LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()
	var out []*AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AuditStats returns the total, per-action counts, and the ten most active actors.
func (s *Store) AuditStats(ctx context.Context, filter AuditFilter) (AuditStats, error) {
	ctx = ensureContext(ctx)
	where, args := auditWhere(filter)

	var stats AuditStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM audit_records`+where, args...).Scan(&stats.Total); err != nil {
		return AuditStats{}, fmt.Errorf("count audit records: %w", err)
	}

	grouped := func(query string) ([]CountRow, error) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []CountRow
		for rows.Next() {
			var row CountRow
			if err := rows.Scan(&row.Key, &row.Count); err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		return out, rows.Err()
	}

	var err error
	stats.ByAction, err = grouped(`SELECT action, COUNT(1) AS n FROM audit_records` + where + ` GROUP BY action ORDER BY n DESC, action`)
	if err != nil {
		return AuditStats{}, fmt.Errorf("group audit by action: %w", err)
	}
	stats.TopActors, err = grouped(`SELECT actor, COUNT(1) AS n FROM audit_records` + where + ` GROUP BY actor ORDER BY n DESC, actor LIMIT 10`)
	if err != nil {
		return AuditStats{}, fmt.Errorf("group audit by actor: %w", err)
	}
	return stats, nil
}
