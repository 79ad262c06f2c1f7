// Package daemon coordinates the long-running reqflowd process.
//
// It wires configuration, the SQLite store, reference data, the workflow
// engine, the event broadcaster, the notification outbox dispatcher and the
// HTTP adapter into a single lifecycle with flock-based locking to prevent
// multiple instances on one data directory.
//
// Keep orchestration logic here: workflow rules live in the workflow package
// while the daemon focuses on startup, shutdown and high level coordination.
package daemon
