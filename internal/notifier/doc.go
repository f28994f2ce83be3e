// Package notifier publishes room event notifications for events arriving
// on the replication events stream.
//
// Events whose token is ahead of the room stream's known maximum are held
// back and released, in arrival order, once the maximum catches up.
package notifier
