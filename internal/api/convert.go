package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reqflow/internal/audit"
	"reqflow/internal/store"
	"reqflow/internal/workflow"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FromAuditRecord converts a stored audit record to its API representation.
func FromAuditRecord(rec *store.AuditRecord) AuditRecord {
	if rec == nil {
		return AuditRecord{}
	}
	return AuditRecord{
		ID:          rec.ID,
		RequestID:   rec.RequestID,
		Actor:       rec.Actor,
		Action:      rec.Action,
		Description: rec.Description,
		Before:      rec.Before,
		After:       rec.After,
		IPAddress:   rec.IPAddress,
		UserAgent:   rec.UserAgent,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt.UTC().Format(dateTimeFormat),
	}
}

// FromAuditRecords converts a slice, never returning nil.
func FromAuditRecords(recs []*store.AuditRecord) []AuditRecord {
	out := make([]AuditRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromAuditRecord(rec))
	}
	return out
}

// queryError marks malformed query parameters.
type queryError struct {
	param string
	err   error
}

func (e *queryError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.param, e.err)
}

func (e *queryError) Unwrap() error { return e.err }

// parseTime accepts RFC3339 timestamps and plain dates. A plain date used
// as an upper bound covers the whole day.
func parseTime(param, value string, upper bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &queryError{param: param, err: fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", value)}
	}
	if upper {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

func parseInt(param, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, &queryError{param: param, err: fmt.Errorf("expected a non-negative integer, got %q", value)}
	}
	return n, nil
}

func parseBool(param, value string) (*bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, &queryError{param: param, err: fmt.Errorf("expected true or false, got %q", value)}
	}
	return &b, nil
}

// ListFilterFromQuery builds a request filter from query parameters.
func ListFilterFromQuery(q url.Values) (workflow.ListFilter, error) {
	f := workflow.ListFilter{
		Department:        strings.TrimSpace(q.Get("department")),
		RelatedDepartment: strings.TrimSpace(q.Get("related_department")),
		Status:            strings.TrimSpace(q.Get("status")),
		Urgency:           strings.TrimSpace(q.Get("urgency")),
		Search:            strings.TrimSpace(q.Get("search")),
	}
	var err error
	if f.Finalized, err = parseBool("finalized", q.Get("finalized")); err != nil {
		return f, err
	}
	if f.CreatedFrom, err = parseTime("from", q.Get("from"), false); err != nil {
		return f, err
	}
	if f.CreatedTo, err = parseTime("to", q.Get("to"), true); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt("limit", q.Get("limit")); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt("offset", q.Get("offset")); err != nil {
		return f, err
	}
	switch strings.TrimSpace(q.Get("needs")) {
	case "":
	case "with":
		f.WithNeeds = true
	case "without":
		f.WithoutNeeds = true
	default:
		return f, &queryError{param: "needs", err: fmt.Errorf("expected with or without")}
	}
	return f, nil
}

// AuditFilterFromQuery builds an audit filter from query parameters.
func AuditFilterFromQuery(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Actor:         strings.TrimSpace(q.Get("actor")),
		Action:        audit.Action(strings.TrimSpace(q.Get("action"))),
		Chronological: strings.EqualFold(q.Get("order"), "asc"),
	}
	if f.Action != "" && !f.Action.Valid() {
		return f, &queryError{param: "action", err: fmt.Errorf("unknown action %q", f.Action)}
	}
	var err error
	if f.From, err = parseTime("from", q.Get("from"), false); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", q.Get("to"), true); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt("limit", q.Get("limit")); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt("offset", q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}
