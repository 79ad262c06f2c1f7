// Command reqflow is the operator CLI for the material request workflow.
//
// Commands open the configured SQLite store directly and run every mutation
// through the workflow engine, so numbering, history, audit and notification
// intents behave exactly as they do behind the daemon's HTTP adapter. When
// the Redis lock backend is configured the CLI shares per-request locks with
// running daemons.
package main
