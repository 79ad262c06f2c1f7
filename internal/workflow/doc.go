// Package workflow routes material requests between departments.
//
// The Engine is the only writer of request state. Every mutation follows the
// same path: take the per-request lock, open a store transaction, load the
// request, apply the change, append exactly one movement entry to the
// history ledger, append an audit record and any notification intents to the
// outbox, commit, then publish events while the lock is still held. Holding
// the lock across publish keeps events for one request in commit order.
//
// Department routing is data driven. A transition Table maps the target
// department (optionally narrowed by the current department and status) to
// the status the request takes on arrival; reference keys are resolved
// through the refdata.Catalog loaded at startup, never numeric ids.
//
// Needs are analysis sub-tasks nested under a request. Creating, completing
// and reopening a need moves the parent request as a side effect inside the
// same transaction.
//
// Side effects that leave the process are never performed inline.
// Notifications are written to the outbox and delivered by the outbox
// dispatcher; event sinks run on their own workers. Their failures are
// logged and never roll back or fail the primary operation.
package workflow
