package parse

import (
	"strings"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/source"
)

// Detect returns the provider that sent msg. Providers are tried in
// event.Providers order and the first hit wins.
func Detect(msg *source.Message) (event.Provider, bool) {
	from := strings.ToLower(msg.From)
	subject := strings.ToLower(msg.Subject)
	text := strings.ToLower(strings.Join([]string{
		msg.Subject, msg.From, msg.TextPlain, msg.TextHTML, msg.Snippet,
	}, "\n"))

	switch {
	case strings.Contains(from, "peatix") || strings.Contains(text, "peatix.com") || strings.Contains(subject, "peatix"):
		return event.ProviderPeatix, true
	case strings.Contains(from, "mosh") || strings.Contains(text, "mosh.jp") || strings.Contains(subject, "mosh"):
		return event.ProviderMosh, true
	case strings.Contains(from, "bonne") || containsAny(text, "スタジオbonne", "studio bonne") || strings.Contains(subject, "bonne"):
		return event.ProviderBonne, true
	case containsAny(text, "yes tokyo", "yes-tokyo", "yestokyo"):
		return event.ProviderYesTokyo, true
	case containsAny(text, "life tuning", "lifetuning"):
		return event.ProviderLifeTuning, true
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
