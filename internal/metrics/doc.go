// Package metrics provides the Prometheus collector for the replication worker.
//
// Key metrics:
//   - replication connection state, connect attempts and backoff delay
//   - batches and rows applied per stream
//   - dispatch failures and latency
//   - room event notifications and push pokes
package metrics
