// Package store persists requests, needs, history entries, audit records,
// number sequences, and notification intents in SQLite.
//
// The Store owns connection setup, embedded migrations, busy retries, and
// every SQL statement in the system. Mutations that must land together run
// through InTx, which hands callers a Tx exposing the same writers on a single
// immediate transaction: either every row of a workflow operation commits or
// none do.
//
// History entries and audit records are append-only. Triggers in the schema
// reject UPDATE and DELETE on both tables.
package store
