// Package database builds the PostgreSQL connection pool the worker's store
// reads events from and records stream positions in.
package database
