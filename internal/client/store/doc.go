// Package store implements the remote-first entity store shared by notes,
// tasks, diary entries and focus sessions.
//
// Every operation tries the remote service first and mirrors a successful
// result into the local cache. When the remote is unreachable or fails on
// its side, the same operation is answered from the cache: reads apply the
// filter, sort and pagination rules of the query package, and writes are
// applied locally, tagged as pending and queued in an outbox that is
// replayed once the remote answers again.
//
// Unauthorized, validation and rate-limit failures are never answered from
// the cache; they are returned to the caller.
package store
