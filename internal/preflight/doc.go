// Package preflight provides readiness checks for the filesystem paths and
// external services reqflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll during startup and logs every failed check as a
//     warning; notification intents stay queued in the outbox until the
//     transport recovers, so a failed check never blocks startup.
//   - The CLI "reqflow doctor" command renders the same results as a table.
//
// Checks for features that are switched off in config are skipped.
package preflight
