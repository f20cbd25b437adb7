// Package store provides conversation history persistence on embedded SQLite.
//
// A session is a named, ordered conversation transcript. The [Store] owns the
// persisted turns; the agent holds only a transient view loaded per request.
//
// Key operations:
//
//   - Session lifecycle: [Store.CreateSession], [Store.Session], [Store.SessionByTopic], [Store.Sessions], [Store.DeleteSession]
//   - Turn persistence: [Store.AppendMessages], [Store.Messages]
//   - Agent integration: [Store.History]
//
// # Ordering
//
// Sequence numbers are assigned inside a write transaction that reads
// MAX(sequence_number); together with the UNIQUE (session_id, sequence_number)
// constraint and SQLite's single-writer locking this serializes concurrent
// appends to the same session, so simultaneous submissions are ordered by
// commit order and none are lost. The log is append-only: errors are recorded
// as new turns, never as mutations of persisted ones.
//
// # Local State
//
// [SaveCurrentSessionID] and [LoadCurrentSessionID] persist the active session
// to ~/.bqchat/current_session using atomic writes (temp file + rename) with
// file locking via [github.com/gofrs/flock].
package store
