package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/gmail/v1"
)

const (
	gmailUser    = "me"
	gmailMaxPage = 500
)

// GmailCollector lists messages matching a Gmail search query and fetches
// each in full.
type GmailCollector struct {
	svc    *gmail.Service
	query  string
	logger *slog.Logger
}

// GmailOption configures a GmailCollector.
type GmailOption func(*GmailCollector)

// WithLogger sets the collector's logger.
func WithLogger(l *slog.Logger) GmailOption {
	return func(c *GmailCollector) {
		c.logger = l
	}
}

// NewGmailCollector creates a collector running query against svc.
func NewGmailCollector(svc *gmail.Service, query string, opts ...GmailOption) *GmailCollector {
	c := &GmailCollector{svc: svc, query: query, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns up to limit messages, newest first as Gmail orders them.
func (c *GmailCollector) Fetch(ctx context.Context, limit int) ([]Message, error) {
	var (
		messages  []Message
		pageToken string
	)
	for len(messages) < limit {
		call := c.svc.Users.Messages.List(gmailUser).
			Q(c.query).
			MaxResults(int64(min(gmailMaxPage, limit-len(messages)))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, ref := range resp.Messages {
			if ref.Id == "" {
				continue
			}
			full, err := c.svc.Users.Messages.Get(gmailUser, ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				return nil, fmt.Errorf("get message %s: %w", ref.Id, err)
			}
			messages = append(messages, toMessage(full))
			if len(messages) >= limit {
				break
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Debug("gmail: fetched messages", "count", len(messages), "query", c.query)
	return messages, nil
}

func toMessage(m *gmail.Message) Message {
	msg := Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
	}
	if m.Payload == nil {
		return msg
	}
	headers := headerMap(m.Payload.Headers)
	msg.Subject = headers["subject"]
	msg.From = headers["from"]
	msg.TextPlain, msg.TextHTML = extractBodies(m.Payload)
	return msg
}

// headerMap lower-cases header names. Later duplicates win.
func headerMap(headers []*gmail.MessagePartHeader) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if h.Name == "" {
			continue
		}
		out[strings.ToLower(h.Name)] = h.Value
	}
	return out
}

// extractBodies walks the MIME tree depth-first and returns the first
// non-empty text/plain and text/html bodies.
func extractBodies(root *gmail.MessagePart) (plain, html string) {
	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		if p == nil {
			return
		}
		if p.Body != nil && p.Body.Data != "" {
			switch p.MimeType {
			case "text/plain":
				if plain == "" {
					plain = decodeBody(p.Body.Data)
				}
			case "text/html":
				if html == "" {
					html = decodeBody(p.Body.Data)
				}
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(root)
	return plain, html
}

// decodeBody decodes Gmail's base64url body data, padded or not. Invalid
// data decodes to "" and invalid UTF-8 is replaced.
func decodeBody(data string) string {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(raw), "�")
}
