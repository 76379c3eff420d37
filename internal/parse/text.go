package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

var (
	weekdayPattern = regexp.MustCompile(`\((?:月|火|水|木|金|土|日)(?:・?祝)?\)`)

	dateTimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})\s*(\d{1,2}):(\d{2})`),
		regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})\s*(\d{1,2}):(\d{2})`),
		regexp.MustCompile(`()(\d{1,2})/(\d{1,2})\s*(\d{1,2}):(\d{2})`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`),
		regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
		regexp.MustCompile(`()(\d{1,2})/(\d{1,2})`),
	}

	urlPattern = regexp.MustCompile(`https?://[^\s>]+`)

	dateReplacer = strings.NewReplacer("年", "/", "月", "/", "日", " ", "時", ":", "分", "")
)

// normalizeDates folds full-width characters to ASCII, drops weekday
// markers and rewrites Japanese date units into slash and colon notation.
func normalizeDates(text string) string {
	folded := width.Fold.String(text)
	folded = weekdayPattern.ReplaceAllString(folded, "")
	return dateReplacer.Replace(folded)
}

// firstDateTime returns the first date with a clock time found in text.
// Patterns are tried in order; the first that matches decides, and an
// impossible date under it moves on to the next pattern.
func firstDateTime(text string, env Env) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	candidate := normalizeDates(text)
	for _, re := range dateTimePatterns {
		m := re.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		if t, ok := buildTime(m[1], m[2], m[3], m[4], m[5], env); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// firstDate is firstDateTime for dates without a time; the result is at
// midnight.
func firstDate(text string, env Env) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	candidate := normalizeDates(text)
	for _, re := range datePatterns {
		m := re.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		if t, ok := buildTime(m[1], m[2], m[3], "0", "0", env); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func buildTime(year, month, day, hour, minute string, env Env) (time.Time, bool) {
	y := env.referenceYear()
	if year != "" {
		y, _ = strconv.Atoi(year)
	}
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, _ := strconv.Atoi(hour)
	mi, _ := strconv.Atoi(minute)

	if mo < 1 || mo > 12 || h > 23 || mi > 59 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, 0, 0, env.Location)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// labelValue returns the trimmed rest of the line after "label:" or
// "label：". The value may start on the following line.
func labelValue(text, label string) string {
	re, err := regexp.Compile(regexp.QuoteMeta(label) + `\s*[:：]\s*(.+)`)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// lineAfter returns the first non-blank line within lookahead lines after
// the line equal to marker.
func lineAfter(text, marker string, lookahead int) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		if strings.TrimSpace(lines[i]) != marker {
			continue
		}
		end := min(i+1+lookahead, len(lines))
		for j := i + 1; j < end; j++ {
			if l := strings.TrimSpace(lines[j]); l != "" {
				return l
			}
		}
	}
	return ""
}

func firstURL(text string) string {
	return urlPattern.FindString(text)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
