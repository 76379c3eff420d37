package parse

import (
	"regexp"
	"strings"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/source"
)

const peatixLookahead = 6

var (
	spaceRun         = regexp.MustCompile(`\s+`)
	peatixBracketed  = regexp.MustCompile(`^\s*【\s*Peatix\s*】\s*`)
	peatixSquare     = regexp.MustCompile(`^\s*\[\s*Peatix\s*\]\s*`)
	peatixTicketTail = regexp.MustCompile(`\s*のチケット(お申し込み)?詳細\s*$`)
	trailingParens   = regexp.MustCompile(`\s*[（(].+?[)）]\s*$`)
	nonDigits        = regexp.MustCompile(`\D+`)
)

// ParsePeatix reads Peatix ticket confirmations. Only the HTML part is
// trusted; the title comes from the Gmail card text, else the subject.
func ParsePeatix(msg *source.Message, env Env) (*event.Event, bool) {
	if msg.TextHTML == "" {
		return nil, false
	}
	text := htmlText(msg.TextHTML)

	occursAt, ok := firstDateTime(text, env)
	if !ok {
		return nil, false
	}

	title := peatixTitleFromBody(text)
	if title == "" {
		title = cleanPeatixTitle(msg.Subject)
	}
	reservation := peatixReservationID(text)

	confidence := 0.85
	if title != "" && reservation != "" {
		confidence = 1.0
	}

	return &event.Event{
		Provider:      event.ProviderPeatix,
		Title:         firstNonEmpty(title, "Peatix Event"),
		OccursAt:      occursAt,
		LocationName:  firstNonEmpty(labelValue(text, "会場"), labelValue(text, "場所")),
		Address:       firstNonEmpty(labelValue(text, "住所"), labelValue(text, "所在地")),
		ReservationID: reservation,
		SourceURL:     peatixEventURL(msg.TextHTML),
		Confidence:    confidence,
	}, true
}

// peatixTitleFromBody prefers the line under the inbox label of the Gmail
// card, which holds "event name (venue)", over the calendar card title.
func peatixTitleFromBody(text string) string {
	return cleanPeatixTitle(firstNonEmpty(
		lineAfter(text, "受信トレイ", peatixLookahead),
		lineAfter(text, "予定のタイトル", peatixLookahead),
		labelValue(text, "予定のタイトル"),
	))
}

// cleanPeatixTitle strips the [Peatix] prefix, the ticket detail suffix and
// a trailing parenthesised venue.
func cleanPeatixTitle(s string) string {
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	s = strings.TrimSpace(peatixBracketed.ReplaceAllString(s, ""))
	s = strings.TrimSpace(peatixSquare.ReplaceAllString(s, ""))
	s = strings.TrimSpace(peatixTicketTail.ReplaceAllString(s, ""))
	return strings.TrimSpace(trailingParens.ReplaceAllString(s, ""))
}

// peatixReservationID keeps only the digits of the confirmation number,
// unless it has none.
func peatixReservationID(text string) string {
	rid := strings.TrimSpace(firstNonEmpty(
		lineAfter(text, "確認番号", peatixLookahead),
		lineAfter(text, "予約番号", peatixLookahead),
		labelValue(text, "確認番号"),
		labelValue(text, "予約番号"),
	))
	if rid == "" {
		return ""
	}
	return firstNonEmpty(nonDigits.ReplaceAllString(rid, ""), rid)
}

func peatixEventURL(doc string) string {
	for _, href := range htmlLinks(doc) {
		if strings.Contains(href, "peatix.com/event") {
			return href
		}
	}
	return ""
}
