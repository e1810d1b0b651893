// Package cache is the local fallback cache: a durable key/value store
// partitioned into namespaces, one per owner (the session manager and each
// entity collection). It is backed by SQLite and never talks to the
// network. Values are JSON documents; a value that no longer decodes into
// the caller's type is reported as a miss rather than an error.
package cache
