// Package notifications delivers request routing notices via pluggable
// transports.
//
// The ntfy transport posts plain-text messages to the topic configured in
// config.toml; the SMTP transport mails the configured recipients. Both are
// optional: NewService combines whichever are configured and degrades to a
// no-op when neither is. Per-event toggles suppress warehouse or shipping
// notices without touching the transports.
//
// Workflow code never calls a Service directly. Intents are written to the
// outbox inside the mutating transaction and the outbox dispatcher calls
// Publish later, so a slow or failing transport cannot affect a request.
package notifications
