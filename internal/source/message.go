package source

import (
	"context"
	"unicode/utf8"
)

// Message is one raw notification mail.
type Message struct {
	ID        string
	ThreadID  string
	Subject   string
	From      string
	Snippet   string
	TextPlain string
	TextHTML  string
}

// Collector fetches at most limit messages.
type Collector interface {
	Fetch(ctx context.Context, limit int) ([]Message, error)
}

// Text returns the plain body when present, else the HTML body.
func (m *Message) Text() string {
	if m.TextPlain != "" {
		return m.TextPlain
	}
	return m.TextHTML
}

// Excerpt returns the first 80 runes of the snippet for log lines.
func (m *Message) Excerpt() string {
	s := m.Snippet
	if utf8.RuneCountInString(s) <= 80 {
		return s
	}
	return string([]rune(s)[:80])
}

// StaticCollector serves a fixed list of messages.
type StaticCollector []Message

// Fetch implements Collector.
func (c StaticCollector) Fetch(_ context.Context, limit int) ([]Message, error) {
	if limit <= 0 || limit >= len(c) {
		return append([]Message(nil), c...), nil
	}
	return append([]Message(nil), c[:limit]...), nil
}
