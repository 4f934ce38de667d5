package nlu

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var (
	todayWords       = []string{"today", "өнөөдөр", "unooder", "unuudur", "onoodor", "önöödör"}
	tomorrowWords    = []string{"tomorrow", "маргааш", "margaash", "margash"}
	dayAfterWords    = []string{"day after tomorrow", "нөгөөдөр", "nugeedr", "nugeedur", "nögöödör"}
	nextMarkers      = []string{"next", "daraa", "дараа", "ирэх", "ireh"}
	ordinalWeekdayRe = regexp.MustCompile(`([1-7])\s*-?\s*(?:r\s*)?(?:deh|dah|doh|dekh|dakh|dokh|dugaar|dvgeer|дэх|дах|дох|дүгээр|дугаар)`)

	isoRe    = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	dottedRe = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	slashRe  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})`)
)

// weekdayNames maps word prefixes to weekdays in all three input languages.
var weekdayNames = []struct {
	prefix string
	day    time.Weekday
}{
	{"monday", time.Monday}, {"davaa", time.Monday}, {"даваа", time.Monday},
	{"tuesday", time.Tuesday}, {"myagmar", time.Tuesday}, {"мягмар", time.Tuesday},
	{"wednesday", time.Wednesday}, {"lhagva", time.Wednesday}, {"лхагва", time.Wednesday},
	{"thursday", time.Thursday}, {"purev", time.Thursday}, {"pvrev", time.Thursday}, {"пүрэв", time.Thursday},
	{"friday", time.Friday}, {"baasan", time.Friday}, {"баасан", time.Friday},
	{"saturday", time.Saturday}, {"byamba", time.Saturday}, {"бямба", time.Saturday},
	{"sunday", time.Sunday}, {"nyam", time.Sunday}, {"ням", time.Sunday},
}

// ResolveDate converts a date expression into YYYY-MM-DD relative to today.
// It returns "" when nothing is recognised.
//
// Forms are tried in a fixed order and the first hit wins: today, tomorrow,
// day after tomorrow, next <weekday>, ISO, DD.MM.YYYY, MM/DD. "day after
// tomorrow" is tested ahead of "tomorrow" because it contains it.
func ResolveDate(text string, today time.Time) string {
	s := normalize(text)
	if s == "" {
		return ""
	}
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	switch {
	case containsAny(s, todayWords...):
		return format(today)
	case containsAny(s, dayAfterWords...):
		return format(today.AddDate(0, 0, 2))
	case containsAny(s, tomorrowWords...):
		return format(today.AddDate(0, 0, 1))
	}

	if day, ok := nextWeekday(s); ok {
		delta := (int(day) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return format(today.AddDate(0, 0, delta))
	}

	if m := isoRe.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), today.Location()); ok {
			return format(d)
		}
	}
	if m := dottedRe.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(atoi(m[3]), atoi(m[2]), atoi(m[1]), today.Location()); ok {
			return format(d)
		}
	}
	if m := slashRe.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(today.Year(), atoi(m[1]), atoi(m[2]), today.Location()); ok {
			return format(d)
		}
	}
	return ""
}

// nextWeekday finds a weekday mentioned after a "next" marker.
func nextWeekday(s string) (time.Weekday, bool) {
	for _, marker := range nextMarkers {
		idx := strings.Index(s, marker)
		if idx < 0 {
			continue
		}
		rest := s[idx+len(marker):]
		if m := ordinalWeekdayRe.FindStringSubmatch(rest); m != nil {
			// 1 = Monday ... 7 = Sunday.
			return time.Weekday(atoi(m[1]) % 7), true
		}
		for _, word := range strings.Fields(rest) {
			for _, w := range weekdayNames {
				if strings.HasPrefix(word, w.prefix) {
					return w.day, true
				}
			}
		}
	}
	return 0, false
}

// IsISODate reports whether s is a valid YYYY-MM-DD date.
func IsISODate(s string) bool {
	_, err := time.Parse(isoDate, s)
	return err == nil
}

// DaySpan returns the inclusive number of days between two ISO dates, or 0
// when either is not a date or end precedes start.
func DaySpan(start, end string) int {
	s, err := time.Parse(isoDate, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(isoDate, end)
	if err != nil || e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

func makeDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func format(t time.Time) string {
	return t.Format(isoDate)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
