// Package logging builds the slog loggers shared by reqflowd and the reqflow
// CLI.
//
// Two handlers are available: a console handler that lifts the component and
// request number into the line header, and a JSON handler for log shipping.
// Both redact attributes whose key names a credential. Context helpers carry
// the HTTP correlation id and acting user into log lines, and NewNop serves
// tests and wiring code that has no logger yet.
package logging
