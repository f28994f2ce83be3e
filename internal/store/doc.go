// Package store applies replicated stream rows to the worker's PostgreSQL
// database and reads persisted events back for notification.
//
// Stream positions are kept in replication_stream_positions and only ever
// move forward, so a batch redelivered after a reconnect is harmless.
// Events are served from an LRU cache that "ev" rows invalidate.
package store
