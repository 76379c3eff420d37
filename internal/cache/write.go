package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/yogisync/internal/event"
)

// Upsert records e and reports what the caller must do next together with
// the remote ref hint to pass to reconciliation.
//
// The read and the write run in one transaction, so the state machine is
// atomic per identity key. A changed fingerprint never clears the stored
// remote ref.
func (s *Store) Upsert(ctx context.Context, e *event.Event) (Action, string, error) {
	key := e.IdentityKey()
	fingerprint := e.Fingerprint()
	now := formatTimestamp(s.now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("upsert: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existingFingerprint, existingRef sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT content_hash, gcal_event_id FROM events WHERE event_uid = ?
	`, key).Scan(&existingFingerprint, &existingRef)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events
			(event_uid, provider, date, title, reservation_id, source_url,
			 gcal_event_id, content_hash, updated_at, location_name, time_unknown)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?)
		`,
			key,
			string(e.Provider),
			formatTimestamp(e.OccursAt),
			e.Title,
			nullable(e.ReservationID),
			nullable(e.SourceURL),
			fingerprint,
			now,
			e.LocationName,
			e.TimeUnknown,
		)
		if err != nil {
			return "", "", fmt.Errorf("upsert: insert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", "", fmt.Errorf("upsert: commit: %w", err)
		}
		return ActionCreated, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("upsert: select existing: %w", err)
	}

	ref := existingRef.String
	if existingFingerprint.String == fingerprint {
		if ref != "" {
			return ActionSkipped, ref, nil
		}
		// Content matches but the remote side was never confirmed.
		return ActionUpdated, "", nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events
		SET provider = ?, date = ?, title = ?, reservation_id = ?, source_url = ?,
		    content_hash = ?, updated_at = ?, location_name = ?, time_unknown = ?
		WHERE event_uid = ?
	`,
		string(e.Provider),
		formatTimestamp(e.OccursAt),
		e.Title,
		nullable(e.ReservationID),
		nullable(e.SourceURL),
		fingerprint,
		now,
		e.LocationName,
		e.TimeUnknown,
		key,
	)
	if err != nil {
		return "", "", fmt.Errorf("upsert: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("upsert: commit: %w", err)
	}

	return ActionUpdated, ref, nil
}

// RecordRemoteRef overwrites the remote ref stored for identityKey and
// refreshes its updated_at stamp. Returns ErrNotFound if the key was never
// upserted.
func (s *Store) RecordRemoteRef(ctx context.Context, identityKey, remoteID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events SET gcal_event_id = ?, updated_at = ? WHERE event_uid = ?
	`, remoteID, formatTimestamp(s.now().UTC()), identityKey)
	if err != nil {
		return fmt.Errorf("record remote ref: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record remote ref: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record remote ref %q: %w", identityKey, ErrNotFound)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
