// Package cache provides the SQLite-backed local cache of observed events.
//
// The cache holds one row per identity key recording the last fingerprint
// seen for that key and the last remote record id it was reconciled to.
// It is the single source of truth for "have we seen this logical event
// before, and where does it live remotely".
//
// # Upsert state machine
//
//   - no row:                          insert, remote ref NULL    -> Created, ""
//   - same fingerprint, remote ref set: no write                   -> Skipped, ref
//   - same fingerprint, no remote ref:  no write                   -> Updated, ""
//   - different fingerprint:            rewrite fields, keep ref   -> Updated, ref
//
// Each upsert is a single read-modify-write transaction on one key. Rows are
// never deleted.
//
// # Database Configuration
//
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000
//   - One open connection: the sync run is the only writer
//
// The table layout matches databases written by earlier releases of the
// tool (event_uid, gcal_event_id, content_hash column names); migration v1
// adds the location_name and time_unknown columns to such databases.
package cache
