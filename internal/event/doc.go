// Package event provides the normalized calendar event type and its identity.
//
// Every other internal package imports event; event imports nothing internal.
//
// Two values derived from an Event drive synchronisation:
//   - IdentityKey: the stable name of a logical event across re-observations.
//     Events with equal provider, minute (or date) truncated time, trimmed
//     title, and trimmed location share a key.
//   - Fingerprint: SHA-256 over every mutable attribute, used only to detect
//     that an already-known event changed.
//
// Both are total: missing optional fields are treated as empty strings.
package event
