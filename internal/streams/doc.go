// Package streams defines the replication streams the worker understands.
//
// A stream is a named, token-indexed feed of change rows written by one or more
// coordinator-side instances. Rows arrive as JSON and are decoded into typed
// values here so that downstream consumers never see wire formats.
//
// Only the events stream has typed rows. Rows of every other stream are kept
// as raw JSON and are handed to the store untouched.
package streams
