// Package events fans workflow changes out to live subscribers.
//
// Events are addressed to channels: "all", "department:<key>" and
// "request:<id>". Each subscriber owns a bounded buffer; when it is full the
// event is dropped for that subscriber only and counted, so a slow consumer
// never blocks the workflow. Optional sinks (Redis pub/sub) receive every
// event after local fanout through their own bounded queue.
package events
