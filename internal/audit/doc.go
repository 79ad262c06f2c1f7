// Package audit records who did what to a request, and from where.
//
// The trail is append-only and separate from the movement history: history
// answers which states a request passed through, the audit trail answers
// which actor took which action in which context, including reads such as
// views and downloads that never change state. Mutating operations write
// their record inside the same transaction as the mutation via RecordTx.
// Non-mutating actions use Record.
package audit
