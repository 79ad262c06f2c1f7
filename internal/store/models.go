package store

import (
	"encoding/json"
	"time"
)

// Request is a material request as stored.
type Request struct {
	ID                int64
	Number            string
	Requester         string
	MaterialName      string
	Lot               string
	Supplier          string
	ArticleCode       string
	Comments          string
	DestinationDeptID int64
	CurrentDeptID     int64
	UrgencyID         int64
	StatusID          int64
	Finalized         bool
	FinalizedAt       *time.Time
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Need is an analysis or warehouse sub-task attached to a request.
type Need struct {
	ID             int64
	RequestID      int64
	Description    string
	AnalysisType   string
	RequiredParams string
	Completed      bool
	Result         string
	Observations   string
	CreatedBy      string
	CreatedAt      time.Time
	CompletedAt    *time.Time
	// CompletedBy is empty while the need is open.
	CompletedBy string
}

// HistoryEntry records one movement of a request. FromDeptID and FromStatusID
// are zero for the entry written at creation. NeedID is set when the movement
// was caused by a need operation.
type HistoryEntry struct {
	ID           int64
	RequestID    int64
	FromDeptID   int64
	ToDeptID     int64
	FromStatusID int64
	ToStatusID   int64
	NeedID       int64
	Comment      string
	Actor        string
	CreatedAt    time.Time
}

// AuditRecord is one entry of the audit trail.
type AuditRecord struct {
	ID          int64
	RequestID   int64
	Actor       string
	Action      string
	Description string
	Before      json.RawMessage
	After       json.RawMessage
	IPAddress   string
	UserAgent   string
	Metadata    json.RawMessage
	CreatedAt   time.Time
}

// OutboxMessage is a notification intent written with the mutation that caused it.
type OutboxMessage struct {
	ID            string
	Kind          string
	RequestID     int64
	Payload       json.RawMessage
	Attempts      int
	NextAttemptAt time.Time
	DeliveredAt   *time.Time
	Failed        bool
	LastError     string
	CreatedAt     time.Time
}

// RequestFilter narrows ListRequests. Zero values mean no constraint.
type RequestFilter struct {
	CurrentDeptID int64
	// RelatedDeptID matches requests whose current or destination department,
	// or any history hop, is the given department.
	RelatedDeptID int64
	StatusID      int64
	UrgencyID     int64
	Finalized     *bool
	CreatedFrom   time.Time
	CreatedTo     time.Time
	Search        string
	WithNeeds     bool
	WithoutNeeds  bool
	Limit         int
	Offset        int
}

// NeedFilter narrows ListNeeds.
type NeedFilter struct {
	RequestID int64
	Completed *bool
	Limit     int
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	RequestID int64
	Actor     string
	Action    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
	// Ascending lists oldest first instead of newest first.
	Ascending bool
}

// CountRow is one bucket of a grouped count.
type CountRow struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// AuditStats summarizes the audit trail.
type AuditStats struct {
	Total     int
	ByAction  []CountRow
	TopActors []CountRow
}

// RequestStats summarizes requests matching a filter.
type RequestStats struct {
	Total        int
	Finalized    int
	ByStatus     map[int64]int
	ByDepartment map[int64]int
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
