package events

import (
	"strconv"
	"strings"
	"time"
)

// Kind names what happened.
type Kind string

const (
	KindRequestCreated   Kind = "request_created"
	KindRequestUpdated   Kind = "request_updated"
	KindRequestFinalized Kind = "request_finalized"
	KindNeedCreated      Kind = "need_created"
	KindNeedUpdated      Kind = "need_updated"
	KindNeedCompleted    Kind = "need_completed"
	KindNeedReopened     Kind = "need_reopened"
	KindNeedDeleted      Kind = "need_deleted"
)

// Event is the payload delivered to subscribers.
type Event struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	RequestID      int64     `json:"request_id"`
	Number         string    `json:"number,omitempty"`
	NeedID         int64     `json:"need_id,omitempty"`
	Department     string    `json:"department,omitempty"`
	PrevDepartment string    `json:"previous_department,omitempty"`
	Status         string    `json:"status,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ChannelAll receives every event.
const ChannelAll = "all"

const (
	departmentPrefix = "department:"
	requestPrefix    = "request:"
)

// DepartmentChannel names the channel for a department key.
func DepartmentChannel(key string) string {
	return departmentPrefix + key
}

// RequestChannel names the channel for a single request.
func RequestChannel(id int64) string {
	return requestPrefix + strconv.FormatInt(id, 10)
}

// ValidChannel reports whether name is a well-formed channel.
func ValidChannel(name string) bool {
	switch {
	case name == ChannelAll:
		return true
	case strings.HasPrefix(name, departmentPrefix):
		return len(name) > len(departmentPrefix)
	case strings.HasPrefix(name, requestPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(name, requestPrefix), 10, 64)
		return err == nil && id > 0
	default:
		return false
	}
}

// Channels returns the channels an event about a request should reach:
// all, the request, the current department and, when it changed, the
// previous department.
func Channels(evt Event) []string {
	out := []string{ChannelAll, RequestChannel(evt.RequestID)}
	if evt.Department != "" {
		out = append(out, DepartmentChannel(evt.Department))
	}
	if evt.PrevDepartment != "" && evt.PrevDepartment != evt.Department {
		out = append(out, DepartmentChannel(evt.PrevDepartment))
	}
	return out
}
