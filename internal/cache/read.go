package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/yogisync/internal/event"
)

const selectColumns = `
	event_uid, provider, date, title, reservation_id, source_url,
	gcal_event_id, content_hash, updated_at, location_name, time_unknown
`

// Get returns the cached record for identityKey, or ErrNotFound.
func (s *Store) Get(ctx context.Context, identityKey string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM events WHERE event_uid = ?", identityKey)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %q: %w", identityKey, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %q: %w", identityKey, err)
	}
	return rec, nil
}

// List returns every cached record ordered by event time, then key.
//
// Returns an empty slice (not nil) when the cache is empty.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM events ORDER BY date ASC, event_uid COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var provider, date, title, reservation, url sql.NullString
	var ref, fingerprint, updated sql.NullString
	err := row.Scan(
		&rec.IdentityKey,
		&provider,
		&date,
		&title,
		&reservation,
		&url,
		&ref,
		&fingerprint,
		&updated,
		&rec.LocationName,
		&rec.TimeUnknown,
	)
	if err != nil {
		return Record{}, err
	}

	rec.Provider = event.Provider(provider.String)
	rec.Title = title.String
	rec.ReservationID = reservation.String
	rec.SourceURL = url.String
	rec.RemoteRef = ref.String
	rec.Fingerprint = fingerprint.String

	if rec.OccursAt, err = parseTimestamp(date.String); err != nil {
		return Record{}, fmt.Errorf("scan %q date: %w", rec.IdentityKey, err)
	}
	if rec.LastUpdated, err = parseTimestamp(updated.String); err != nil {
		return Record{}, fmt.Errorf("scan %q updated_at: %w", rec.IdentityKey, err)
	}
	return rec, nil
}
