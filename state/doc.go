// Package state implements the node's state store: peers, posts, direct
// messages, likes, follow edges, and groups, guarded by one mutex so that
// the receive path and the presence loop never race.
//
// # Change Reporting
//
// Every mutator returns a bool reporting whether observable state changed.
// Handlers use this to suppress side effects for duplicate messages: a POST
// already stored, a PROFILE that bumps nothing, a LIKE older than the state
// it would overwrite. UDP delivers duplicates; the store is where they die.
//
// # Persistence
//
// Snapshot/Restore serialize the durable entities to a JSON blob: a
// versioned struct, plain json.Marshal, best-effort load. In-flight file
// transfers and game sessions are not part of the snapshot; they die with
// the process.
package state
