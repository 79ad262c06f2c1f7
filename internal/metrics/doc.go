// Package metrics exposes Prometheus collectors for the request workflow.
//
// A Metrics value owns its registry so tests and multiple daemons in one
// process never collide on the default registerer. Every recording method is
// safe to call on a nil *Metrics, which lets packages accept an optional
// metrics sink without guarding each call site.
package metrics
