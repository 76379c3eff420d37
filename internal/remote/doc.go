// Package remote reconciles events against a remote calendar that cannot
// enforce uniqueness on its own.
//
// Every record written by this package embeds its event's identity marker
// as a description line. Reconcile searches the store for that marker
// before writing, so the outcome does not depend on the local cache being
// right:
//
//   - no match:   create (only when allowed)
//   - one match:  update it, preferring the caller's hint as the target
//   - many:       keep one survivor, optionally delete the rest, update it
//
// The survivor is the hinted record when it is among the matches, otherwise
// the match with the greatest (last modified, id) pair.
//
// Two Store implementations are provided: GoogleStore over the Calendar v3
// API, and MemoryStore for tests and dry runs.
package remote
