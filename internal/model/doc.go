// Package model defines shared data types used across the replication worker.
//
// Conventions:
//   - Stream positions (tokens): int64, monotonically increasing per stream
//   - Event and room IDs: opaque strings as issued by the coordinator
//   - User IDs: fully qualified ("@user:server")
package model
