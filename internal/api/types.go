package api

import (
	"encoding/json"

	"reqflow/internal/audit"
	"reqflow/internal/history"
	"reqflow/internal/refdata"
	"reqflow/internal/workflow"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// HealthResponse reports daemon readiness.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// CreateRequestBody is the payload of POST /api/requests.
type CreateRequestBody struct {
	Requester    string `json:"requester"`
	MaterialName string `json:"material_name"`
	Lot          string `json:"lot"`
	Supplier     string `json:"supplier"`
	ArticleCode  string `json:"article_code"`
	Comments     string `json:"comments"`
	Destination  string `json:"destination"`
	Urgency      string `json:"urgency"`
}

// TransitionBody is the payload of POST /api/requests/{id}/transition.
type TransitionBody struct {
	Status     string `json:"status"`
	Department string `json:"department"`
	Comment    string `json:"comment"`
}

// RouteBody is the payload of POST /api/requests/{id}/route.
type RouteBody struct {
	Department string `json:"department"`
	Comment    string `json:"comment"`
}

// CommentBody carries an optional comment for finalize and return.
type CommentBody struct {
	Comment string `json:"comment"`
}

// ActionBody records a non-mutating action such as a download.
type ActionBody struct {
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NeedBody is the payload of POST /api/requests/{id}/needs.
type NeedBody struct {
	Description    string `json:"description"`
	AnalysisType   string `json:"analysis_type"`
	RequiredParams string `json:"required_params"`
}

// NeedPatchBody is the payload of PATCH /api/needs/{id}. Absent fields are
// left unchanged.
type NeedPatchBody struct {
	Description    *string `json:"description"`
	AnalysisType   *string `json:"analysis_type"`
	RequiredParams *string `json:"required_params"`
	Observations   *string `json:"observations"`
}

// CompleteNeedBody is the payload of POST /api/needs/{id}/complete.
type CompleteNeedBody struct {
	Result       string `json:"result"`
	Observations string `json:"observations"`
}

// ReopenNeedBody is the payload of POST /api/needs/{id}/reopen.
type ReopenNeedBody struct {
	Reason string `json:"reason"`
}

// RequestListResponse wraps a request listing.
type RequestListResponse struct {
	Items []workflow.Request `json:"items"`
}

// NeedListResponse wraps a need listing.
type NeedListResponse struct {
	Items []workflow.Need `json:"items"`
}

// TimelineResponse is the merged history of one request.
type TimelineResponse struct {
	RequestID int64          `json:"request_id"`
	Items     []history.Item `json:"items"`
}

// AuditRecord is the wire form of an audit entry.
type AuditRecord struct {
	ID          int64           `json:"id"`
	RequestID   int64           `json:"request_id,omitempty"`
	Actor       string          `json:"actor"`
	Action      string          `json:"action"`
	Description string          `json:"description"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	IPAddress   string          `json:"ip_address,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// AuditListResponse wraps audit records.
type AuditListResponse struct {
	Items []AuditRecord `json:"items"`
}

// AuditStatsResponse is the body of GET /api/audit/stats.
type AuditStatsResponse = audit.Stats

// RefdataResponse lists the reference tables.
type RefdataResponse struct {
	Departments []refdata.Department `json:"departments"`
	Statuses    []refdata.Status     `json:"statuses"`
	Urgencies   []refdata.Urgency    `json:"urgencies"`
}
