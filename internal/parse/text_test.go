package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func testEnv(t *testing.T) Env {
	loc := tokyo(t)
	return Env{
		Location: loc,
		Now:      func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, loc) },
	}
}

func TestFirstDateTime(t *testing.T) {
	env := testEnv(t)
	at := func(y int, m time.Month, d, h, mi int) time.Time {
		return time.Date(y, m, d, h, mi, 0, 0, env.Location)
	}

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"kanji with weekday", "日時：2024年5月1日(水) 19:00〜20:00", at(2024, 5, 1, 19, 0)},
		{"kanji units", "2024年5月1日19時05分", at(2024, 5, 1, 19, 5)},
		{"full width", "２０２４/５/１ １９:００", at(2024, 5, 1, 19, 0)},
		{"full width weekday", "２０２４年５月１日（土・祝）　９時３０分", at(2024, 5, 1, 9, 30)},
		{"hyphenated", "start 2024-05-01 07:30 end", at(2024, 5, 1, 7, 30)},
		{"no year uses reference year", "5月12日(日) 10時30分", at(2024, 5, 12, 10, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstDateTime(tt.text, env)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, env.Location, got.Location())
		})
	}
}

func TestFirstDateTime_Rejects(t *testing.T) {
	env := testEnv(t)
	for _, text := range []string{"", "no dates here", "2024/2/30 10:00", "2024/5/1", "13/40 10:00"} {
		_, ok := firstDateTime(text, env)
		assert.False(t, ok, text)
	}
}

func TestFirstDate(t *testing.T) {
	env := testEnv(t)

	got, ok := firstDate("開催日：2024年6月9日", env)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 6, 9, 0, 0, 0, 0, env.Location).Equal(got))

	got, ok = firstDate("6/9 開催", env)
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())

	_, ok = firstDate("none", env)
	assert.False(t, ok)
}

func TestLabelValue(t *testing.T) {
	text := "会場：Andhra Dining \n住所: 東京都渋谷区\n講師:\n  Aiko\n"
	assert.Equal(t, "Andhra Dining", labelValue(text, "会場"))
	assert.Equal(t, "東京都渋谷区", labelValue(text, "住所"))
	assert.Equal(t, "Aiko", labelValue(text, "講師"))
	assert.Equal(t, "", labelValue(text, "予約番号"))
	assert.Equal(t, "x", labelValue("a.b: x", "a.b"))
}

func TestLineAfter(t *testing.T) {
	text := "head\n確認番号\n\n  AB-1  \nlater"
	assert.Equal(t, "AB-1", lineAfter(text, "確認番号", 6))
	assert.Equal(t, "", lineAfter(text, "確認番号", 1))
	assert.Equal(t, "", lineAfter(text, "missing", 6))
}

func TestFirstURL(t *testing.T) {
	assert.Equal(t, "https://mosh.jp/s/1", firstURL("see <https://mosh.jp/s/1> now"))
	assert.Equal(t, "", firstURL("no link"))
}

func TestHTMLTextAndLinks(t *testing.T) {
	doc := `<html><head><style>p{}</style></head><body><p>one</p><script>x()</script>` +
		`<div>two <a href="https://a.example/">link</a></div><a>bare</a></body></html>`

	assert.Equal(t, "one\ntwo \nlink\nbare", htmlText(doc))
	assert.Equal(t, []string{"https://a.example/"}, htmlLinks(doc))
}

func TestCleanPeatixTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"【Peatix】 Sunset Yoga のチケットお申し込み詳細", "Sunset Yoga"},
		{"[Peatix] Sunset  Yoga のチケット詳細", "Sunset Yoga"},
		{"Morning Yoga Flow（Andhra Dining）", "Morning Yoga Flow"},
		{"Plain", "Plain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanPeatixTitle(tt.in), tt.in)
	}
}
