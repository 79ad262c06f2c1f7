// Package history reads the per-request movement ledger.
//
// Movement entries are appended by the workflow engine inside the same
// transaction as the request update they describe, so the ledger is a
// complete record of every department and status a request passed through.
// Timeline merges those movements with need lifecycle moments for display;
// Replay folds the movements back into the request's current position.
package history
