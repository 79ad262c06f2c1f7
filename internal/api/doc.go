// Package api exposes the request workflow over HTTP.
//
// The handler is a thin JSON adapter: every route decodes its input, calls
// one workflow.Engine operation and encodes the result. Errors are mapped to
// status codes through workflow.Kind so callers can branch on the "kind"
// field of the error body.
//
// # Identity and origin
//
// The acting user is read from the X-User-Name header. The client address,
// user agent, method and path are attached to the request context with
// audit.WithOrigin so every audit record written while serving the request
// carries them. A correlation id is taken from X-Request-ID or generated.
//
// # Live updates
//
// GET /api/events?channel=<name> streams broadcaster events as Server-Sent
// Events. Channel names follow events.ValidChannel: "all",
// "department:<key>" or "request:<id>". Delivery is at most once; a slow
// client loses events rather than stalling publishers.
//
// /metrics serves the Prometheus registry and /health reports store
// reachability.
package api
