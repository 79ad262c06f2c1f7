package audit

// Action is the kind of an audit record.
type Action string

const (
	ActionCreateRequest   Action = "create_request"
	ActionUpdateRequest   Action = "update_request"
	ActionChangeStatus    Action = "change_status"
	ActionMoveDepartment  Action = "move_department"
	ActionAddComment      Action = "add_comment"
	ActionUploadFile      Action = "upload_file"
	ActionDeleteFile      Action = "delete_file"
	ActionCreateNeed      Action = "create_need"
	ActionCompleteNeed    Action = "complete_need"
	ActionReopenNeed      Action = "reopen_need"
	ActionUpdateNeed      Action = "update_need"
	ActionDeleteNeed      Action = "delete_need"
	ActionFinalizeRequest Action = "finalize_request"
	ActionSendEmail       Action = "send_email"
	ActionViewRequest     Action = "view_request"
	ActionDownloadFile    Action = "download_file"
)

var allActions = []Action{
	ActionCreateRequest,
	ActionUpdateRequest,
	ActionChangeStatus,
	ActionMoveDepartment,
	ActionAddComment,
	ActionUploadFile,
	ActionDeleteFile,
	ActionCreateNeed,
	ActionCompleteNeed,
	ActionReopenNeed,
	ActionUpdateNeed,
	ActionDeleteNeed,
	ActionFinalizeRequest,
	ActionSendEmail,
	ActionViewRequest,
	ActionDownloadFile,
}

// Actions lists every known action kind.
func Actions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// Valid reports whether a is a known action kind.
func (a Action) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

// Mutating reports whether the action changes request state. Only
// non-mutating actions may be recorded outside a workflow transaction.
func (a Action) Mutating() bool {
	switch a {
	case ActionViewRequest, ActionDownloadFile, ActionSendEmail:
		return false
	default:
		return true
	}
}
