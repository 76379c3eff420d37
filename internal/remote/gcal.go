package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const googlePageSize = 250

// GoogleStore is a Store backed by a Google Calendar.
type GoogleStore struct {
	svc        *calendar.Service
	calendarID string
}

// NewGoogleStore wraps svc for calendarID. An empty calendarID yields a
// store whose Destination is empty, which the reconciler rejects before
// any call is made.
func NewGoogleStore(svc *calendar.Service, calendarID string) *GoogleStore {
	return &GoogleStore{svc: svc, calendarID: calendarID}
}

// Destination implements Store.
func (g *GoogleStore) Destination() string {
	return g.calendarID
}

// Search lists single events in window whose text matches marker, following
// every page.
func (g *GoogleStore) Search(ctx context.Context, marker string, window TimeWindow) ([]RecordView, error) {
	call := g.svc.Events.List(g.calendarID).
		Q(marker).
		TimeMin(window.Min.Format(time.RFC3339)).
		TimeMax(window.Max.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		MaxResults(googlePageSize)

	var views []RecordView
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			views = append(views, RecordView{
				ID:           item.Id,
				LastModified: parseUpdated(item.Updated),
				Description:  item.Description,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return views, nil
}

// Create implements Store.
func (g *GoogleStore) Create(ctx context.Context, body Body) (string, error) {
	ev, err := g.svc.Events.Insert(g.calendarID, toCalendarEvent(body)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return ev.Id, nil
}

// Update replaces the record's content entirely.
func (g *GoogleStore) Update(ctx context.Context, id string, body Body) (string, error) {
	ev, err := g.svc.Events.Update(g.calendarID, id, toCalendarEvent(body)).Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			return "", fmt.Errorf("update event %s: %w", id, ErrRecordNotFound)
		}
		return "", fmt.Errorf("update event %s: %w", id, err)
	}
	return ev.Id, nil
}

// Delete removes the record. A record that is already gone counts as
// deleted.
func (g *GoogleStore) Delete(ctx context.Context, id string) error {
	err := g.svc.Events.Delete(g.calendarID, id).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func toCalendarEvent(b Body) *calendar.Event {
	ev := &calendar.Event{
		Summary:     b.Summary,
		Description: b.Description,
		Location:    b.Location,
	}
	if b.AllDay {
		ev.Start = &calendar.EventDateTime{Date: b.Start.Format("2006-01-02")}
		ev.End = &calendar.EventDateTime{Date: b.End.Format("2006-01-02")}
		return ev
	}
	ev.Start = &calendar.EventDateTime{DateTime: b.Start.Format(time.RFC3339), TimeZone: b.TimeZone}
	ev.End = &calendar.EventDateTime{DateTime: b.End.Format(time.RFC3339), TimeZone: b.TimeZone}
	return ev
}

// parseUpdated reads the API's modification stamp. An unparsable stamp
// sorts first.
func parseUpdated(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
