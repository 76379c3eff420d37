package parse

import (
	"time"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/source"
)

// ParseMosh reads MOSH booking mails. MOSH mails carry no venue or booking
// number the tool can rely on, hence the lower confidence.
func ParseMosh(msg *source.Message, env Env) (*event.Event, bool) {
	text := msg.Text()
	occursAt, ok := firstDateTime(text, env)
	if !ok {
		return nil, false
	}
	return &event.Event{
		Provider: event.ProviderMosh,
		Title: firstNonEmpty(
			labelValue(text, "サービス"),
			labelValue(text, "メニュー"),
			msg.Subject,
			"MOSH Reservation",
		),
		OccursAt:   occursAt,
		SourceURL:  firstURL(text),
		Confidence: 0.8,
	}, true
}

// ParseBonne reads Studio BONNE reservation mails.
func ParseBonne(msg *source.Message, env Env) (*event.Event, bool) {
	text := msg.Text()
	occursAt, ok := firstDateTime(text, env)
	if !ok {
		return nil, false
	}
	return &event.Event{
		Provider: event.ProviderBonne,
		Title: firstNonEmpty(
			labelValue(text, "プログラム"),
			labelValue(text, "クラス"),
			msg.Subject,
			"Studio BONNE Reservation",
		),
		OccursAt:      occursAt,
		LocationName:  "スタジオBONNE",
		Instructor:    firstNonEmpty(labelValue(text, "インストラクター"), labelValue(text, "講師")),
		ReservationID: firstNonEmpty(labelValue(text, "予約番号"), labelValue(text, "予約ID")),
		SourceURL:     firstURL(text),
		Confidence:    1.0,
	}, true
}

// ParseYesTokyo reads YES TOKYO class bookings.
func ParseYesTokyo(msg *source.Message, env Env) (*event.Event, bool) {
	text := msg.Text()
	occursAt, ok := firstDateTime(text, env)
	if !ok {
		return nil, false
	}
	return &event.Event{
		Provider: event.ProviderYesTokyo,
		Title: firstNonEmpty(
			labelValue(text, "クラス"),
			labelValue(text, "プログラム"),
			msg.Subject,
			"YES TOKYO Reservation",
		),
		OccursAt:      occursAt,
		LocationName:  firstNonEmpty(labelValue(text, "店舗"), "YES TOKYO STUDIO"),
		ReservationID: firstNonEmpty(labelValue(text, "予約番号"), labelValue(text, "予約ID")),
		SourceURL:     firstURL(text),
		Confidence:    1.0,
	}, true
}

// ParseLifeTuning reads LIFE TUNING DAYS order mails. Orders often name
// only the day; such events are placed at noon with TimeUnknown set.
func ParseLifeTuning(msg *source.Message, env Env) (*event.Event, bool) {
	text := msg.TextPlain
	if text == "" {
		if msg.TextHTML == "" {
			return nil, false
		}
		text = htmlText(msg.TextHTML)
	}

	e := &event.Event{
		Provider:   event.ProviderLifeTuning,
		Confidence: 1.0,
	}
	if t, ok := firstDateTime(text, env); ok {
		e.OccursAt = t
	} else {
		day, ok := firstDate(text, env)
		if !ok {
			return nil, false
		}
		e.OccursAt = time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, day.Location())
		e.TimeUnknown = true
		e.Confidence = 0.5
	}

	e.Title = firstNonEmpty(
		labelValue(text, "商品名"),
		labelValue(text, "イベント"),
		msg.Subject,
		"LIFE TUNING DAYS",
	)
	e.LocationName = labelValue(text, "会場")
	e.Address = labelValue(text, "住所")
	e.ReservationID = labelValue(text, "注文番号")
	e.SourceURL = firstURL(text)
	return e, true
}
