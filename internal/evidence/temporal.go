package evidence

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDay     = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`)
	dayMonth     = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthPattern + `\b(?:,?\s+(\d{4}))?`)
	relativeDay  = regexp.MustCompile(`(?i)\b(yesterday|today|tonight|this morning|last night|last week|last month)\b`)
	weekdayMatch = regexp.MustCompile(`(?i)\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)s?\b`)
)

// ReferencedDate parses the first temporal reference in a claim. Absolute
// dates without a year, relative words and weekday names are resolved against
// anchor, normally the most recent journal entry date; when anchor is zero
// only fully specified dates resolve. Returns nil when nothing is found.
func ReferencedDate(text string, anchor time.Time) *time.Time {
	if m := isoDate.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(m[1], monthNumber(m[2]), m[3], anchor); ok {
			return &d
		}
	}
	if m := monthDay.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(m[3], months[strings.ToLower(m[1])], m[2], anchor); ok {
			return &d
		}
	}
	if m := dayMonth.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(m[3], months[strings.ToLower(m[2])], m[1], anchor); ok {
			return &d
		}
	}
	if anchor.IsZero() {
		return nil
	}
	day := truncateDay(anchor)

	if m := relativeDay.FindStringSubmatch(text); m != nil {
		var d time.Time
		switch strings.ToLower(m[1]) {
		case "yesterday", "last night":
			d = day.AddDate(0, 0, -1)
		case "today", "tonight", "this morning":
			d = day
		case "last week":
			d = day.AddDate(0, 0, -7)
		case "last month":
			d = day.AddDate(0, -1, 0)
		}
		return &d
	}
	if m := weekdayMatch.FindStringSubmatch(text); m != nil {
		want := weekdays[strings.ToLower(m[1])]
		back := (int(day.Weekday()) - int(want) + 7) % 7
		d := day.AddDate(0, 0, -back)
		return &d
	}
	return nil
}

func monthNumber(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return time.Month(n)
}

func makeDate(year string, month time.Month, day string, anchor time.Time) (time.Time, bool) {
	if month < time.January || month > time.December {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}

	var y int
	switch {
	case year != "":
		if y, err = strconv.Atoi(year); err != nil {
			return time.Time{}, false
		}
	case !anchor.IsZero():
		y = anchor.Year()
		// A month after the anchor's month refers to the previous year.
		if month > anchor.Month() {
			y--
		}
	default:
		return time.Time{}, false
	}

	t := time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
