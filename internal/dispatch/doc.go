// Package dispatch applies replication batches to local state.
//
// Handler writes every batch to the store and derives room event
// notifications and push nudges from the events stream. Sequencer sits
// between a connection session and a DataHandler: it keeps one lane per
// stream so batches of a stream are applied strictly in arrival order while
// a slow stream never holds up the others.
package dispatch
