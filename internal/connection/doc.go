// Package connection keeps the worker's single replication link to the
// coordinator alive.
//
// Manager is an explicit state machine:
//
//	idle -> connecting -> connected -> backing-off -> connecting ...
//	any  -> stopped
//
// Failed and lost connections are retried after a delay that grows by a
// constant factor up to a maximum. Retrying ends only when shutdown is
// requested. Each established connection gets a fresh Session built by
// the configured SessionFactory.
package connection
