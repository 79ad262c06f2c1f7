// Package outbox drains notification intents written by the workflow engine.
//
// The engine writes one outbox row per intent inside the same transaction as
// the request mutation. The Dispatcher polls for due rows, hands them to the
// notification service and records the outcome. Failures are retried with
// exponential backoff until the attempt budget is spent, after which the row
// is parked as failed. Request state is never read or written here.
package outbox
