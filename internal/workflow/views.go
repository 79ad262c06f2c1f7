package workflow

import (
	"time"

	"reqflow/internal/history"
	"reqflow/internal/store"
)

// Request is the caller-facing view of a request with reference ids resolved
// to keys.
type Request struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Requester    string     `json:"requester"`
	MaterialName string     `json:"material_name"`
	Lot          string     `json:"lot"`
	Supplier     string     `json:"supplier"`
	ArticleCode  string     `json:"article_code"`
	Comments     string     `json:"comments,omitempty"`
	Destination  string     `json:"destination_department"`
	Department   string     `json:"department"`
	Status       string     `json:"status"`
	Urgency      string     `json:"urgency"`
	Priority     int        `json:"priority"`
	Finalized    bool       `json:"finalized"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RequestDetail is a request with its needs and timeline.
type RequestDetail struct {
	Request
	Needs    []Need         `json:"needs"`
	Timeline []history.Item `json:"timeline"`
}

// Need is the caller-facing view of a need.
type Need struct {
	ID             int64      `json:"id"`
	RequestID      int64      `json:"request_id"`
	Description    string     `json:"description"`
	AnalysisType   string     `json:"analysis_type,omitempty"`
	RequiredParams string     `json:"required_params,omitempty"`
	Completed      bool       `json:"completed"`
	Result         string     `json:"result,omitempty"`
	Observations   string     `json:"observations,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletedBy    string     `json:"completed_by,omitempty"`
}

// Stats summarizes requests matching a filter.
type Stats struct {
	Total        int            `json:"total"`
	Finalized    int            `json:"finalized"`
	Pending      int            `json:"pending"`
	InProcess    int            `json:"in_process"`
	ByStatus     map[string]int `json:"by_status"`
	ByDepartment map[string]int `json:"by_department"`
}

func (e *Engine) requestView(r *store.Request) Request {
	v := Request{
		ID:           r.ID,
		Number:       r.Number,
		Requester:    r.Requester,
		MaterialName: r.MaterialName,
		Lot:          r.Lot,
		Supplier:     r.Supplier,
		ArticleCode:  r.ArticleCode,
		Comments:     r.Comments,
		Destination:  e.catalog.DeptKey(r.DestinationDeptID),
		Department:   e.catalog.DeptKey(r.CurrentDeptID),
		Status:       e.catalog.StatusKey(r.StatusID),
		Finalized:    r.Finalized,
		FinalizedAt:  r.FinalizedAt,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if u, ok := e.catalog.UrgencyByID(r.UrgencyID); ok {
		v.Urgency = u.Key
		v.Priority = u.Priority
	}
	return v
}

func needView(n *store.Need) Need {
	return Need{
		ID:             n.ID,
		RequestID:      n.RequestID,
		Description:    n.Description,
		AnalysisType:   n.AnalysisType,
		RequiredParams: n.RequiredParams,
		Completed:      n.Completed,
		Result:         n.Result,
		Observations:   n.Observations,
		CreatedBy:      n.CreatedBy,
		CreatedAt:      n.CreatedAt,
		CompletedAt:    n.CompletedAt,
		CompletedBy:    n.CompletedBy,
	}
}

// position is the audit snapshot of a request.
type position struct {
	Department string `json:"department"`
	Status     string `json:"status"`
	Urgency    string `json:"urgency"`
	Finalized  bool   `json:"finalized"`
}

func (e *Engine) positionOf(r *store.Request) position {
	return position{
		Department: e.catalog.DeptKey(r.CurrentDeptID),
		Status:     e.catalog.StatusKey(r.StatusID),
		Urgency:    urgencyKey(e, r.UrgencyID),
		Finalized:  r.Finalized,
	}
}

func urgencyKey(e *Engine, id int64) string {
	if u, ok := e.catalog.UrgencyByID(id); ok {
		return u.Key
	}
	return ""
}
