package timeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"igmonitor/pkg/errors"
)

// Relative display text shows up when the datetime attribute is missing.
// Both English and Chinese variants appear depending on the account locale.
// The word boundary anchors only the Latin alternatives: \b is ASCII-only
// in RE2 and never matches after a CJK character, so the Chinese forms
// stand unanchored.
var (
	minutesPattern = regexp.MustCompile(`(\d+)\s*(分钟|minutes\b|minute\b|min\b|m\b)`)
	hoursPattern   = regexp.MustCompile(`(\d+)\s*(小时|hours\b|hour\b|hr\b|h\b)`)
	daysPattern    = regexp.MustCompile(`(\d+)\s*(天|days\b|day\b|d\b)`)
	weeksPattern   = regexp.MustCompile(`(\d+)\s*(周|星期|weeks\b|week\b|wk\b|w\b)`)
	cnDatePattern  = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	clockPattern   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

var justNowTerms = []string{"刚刚", "just now", "几秒", "seconds", "second", "sec"}

// absoluteLayouts tried last, for fully spelled dates
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseTimestamp resolves a post's publish time. The datetime attribute is
// authoritative when present; display text is the fallback. Returns a
// timestamp_unparseable error when neither yields a time.
func ParseTimestamp(attr, text string, now time.Time) (time.Time, error) {
	if attr != "" {
		for _, layout := range absoluteLayouts {
			if t, err := time.Parse(layout, attr); err == nil {
				return t, nil
			}
		}
	}

	if text != "" {
		if t, ok := parseRelative(text, now); ok {
			return t, nil
		}
	}

	return time.Time{}, errors.New(errors.KindTimestampUnparseable,
		"cannot parse publish time from %q / %q", attr, text)
}

func parseRelative(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, term := range justNowTerms {
		if strings.Contains(lower, term) {
			return now, true
		}
	}

	if m := minutesPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Minute), true
	}

	if m := hoursPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Hour), true
	}

	if strings.Contains(lower, "昨天") || strings.Contains(lower, "yesterday") {
		return now.AddDate(0, 0, -1), true
	}

	if strings.Contains(lower, "今天") || strings.Contains(lower, "today") {
		if m := clockPattern.FindStringSubmatch(lower); m != nil {
			hour, _ := strconv.Atoi(m[1])
			minute, _ := strconv.Atoi(m[2])
			return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), true
		}
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
	}

	if m := daysPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, -n), true
	}

	if m := weeksPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, -7*n), true
	}

	if m := cnDatePattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		if c := clockPattern.FindStringSubmatch(text); c != nil {
			hour, _ := strconv.Atoi(c[1])
			minute, _ := strconv.Atoi(c[2])
			t = time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location())
		}
		return t, true
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(text)); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
