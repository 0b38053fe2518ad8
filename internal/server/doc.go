// Package server owns the listening side of netspeed.
//
// Ownership boundary:
// - accept loop and admission (accept or decline)
// - one Worker goroutine per admitted connection
// - optional admin HTTP surface (health, sessions, metrics)
//
// Lifecycle per connection:
// - accept -> admit -> Ready -> ping -> command loop -> closed | error
//
// - declined connections get Decline(MaxThreadsExceeded) and are closed
// without touching the active counter.
//
// - a Worker error ends only that Worker; the accept loop keeps running.
package server
