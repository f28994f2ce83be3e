// Package push pokes the push gateway when new events land on the events
// stream so it can fan notifications out to pushers.
package push
