// Package locks serializes work per key.
//
// Keyed is an in-process, reference-counted lock table: entries exist only
// while someone holds or waits for a key. It can be layered over a
// Distributed locker (Redis) so several reqflow processes sharing one
// database also serialize on the same request.
package locks
