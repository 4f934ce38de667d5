package nlu

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"leavebot/internal/model"
)

// Display labels produced by NormalizeHours.
const (
	LabelFullDay       = "Full day (8h)"
	LabelHalfDay       = "Half day (4h)"
	LabelMorningHalf   = "Morning half (4h)"
	LabelAfternoonHalf = "Afternoon half (4h)"
)

var (
	// Checked in order; the half-day variants precede the plain half day
	// because they contain its keywords.
	hourPhrases = []struct {
		label string
		hours float64
		words []string
	}{
		{LabelFullDay, 8, []string{"full day", "бүтэн өдөр", "buten", "büten"}},
		{LabelMorningHalf, 4, []string{"morning half", "өглөөний хагас", "ogloonii hagas", "öglöönii hagas"}},
		{LabelAfternoonHalf, 4, []string{"afternoon half", "үдээс хойш", "udees hoish", "üdees hoish"}},
		{LabelHalfDay, 4, []string{"half day", "хагас өдөр", "хагас", "hagas"}},
	}

	hoursRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:(?:tsag|цаг)(\p{L}*)|hours?|hrs?|h(?:\s|\)|$))`)
	daysRe  = regexp.MustCompile(`(\d+)\s*(?:honog|хоног|udur|өдөр|days?)`)

	// "10 tsagaas hoish" is a clock time ("after 10 o'clock"), not a duration.
	ablativeSuffixes = []string{"aas", "ees", "oos", "аас", "ээс", "оос", "өөс"}
)

// NormalizeHours maps a duration expression to a display label and its
// numeric hours. Unrecognised text yields ("", 0).
func NormalizeHours(text string) (string, float64) {
	s := normalizeHours(text)
	if s == "" {
		return "", 0
	}

	for _, p := range hourPhrases {
		if containsAny(s, p.words...) {
			return p.label, p.hours
		}
	}

	for _, m := range hoursRe.FindAllStringSubmatch(s, -1) {
		if isAblative(m[2]) {
			continue
		}
		n, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil && n > 0 && n <= 24 {
			if n == 8 {
				return LabelFullDay, 8
			}
			return formatNumber(n) + " hour(s)", n
		}
	}

	if n, ok := dayCount(s); ok {
		return strconv.Itoa(n) + " day(s)", float64(n) * 8
	}
	return "", 0
}

func isAblative(suffix string) bool {
	for _, a := range ablativeSuffixes {
		if strings.HasPrefix(suffix, a) {
			return true
		}
	}
	return false
}

// dayCount recognises "<N> honog/хоног/udur/өдөр" as a total duration, except
// after a "next" marker where "7 honog" means "next week".
func dayCount(s string) (int, bool) {
	loc := daysRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return 0, false
	}
	before := strings.TrimSpace(s[:loc[0]])
	for _, marker := range nextMarkers {
		if strings.HasSuffix(before, marker) {
			return 0, false
		}
	}
	n := atoi(s[loc[2]:loc[3]])
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// HoursValue is the numeric hours submitted to the absence service. An
// explicit duration label is used unchanged; otherwise the start/end span
// counts eight hours per day; otherwise DefaultHours.
func HoursValue(label, start, end string) float64 {
	if _, h := NormalizeHours(label); h > 0 {
		return h
	}
	if days := DaySpan(start, end); days > 0 {
		return float64(days) * 8
	}
	return model.DefaultHours
}

// EndForDuration is the last day of a leave that starts on start and lasts
// the "<N> day(s)" duration in label. It returns "" when label is not a day
// count or start is not an ISO date.
func EndForDuration(start, label string) string {
	n, ok := dayCount(normalizeHours(label))
	if !ok {
		return ""
	}
	d, err := time.Parse(isoDate, start)
	if err != nil {
		return ""
	}
	return format(d.AddDate(0, 0, n-1))
}

// normalizeHours is normalize that keeps parentheses so labels round-trip.
func normalizeHours(text string) string {
	return strings.NewReplacer("(", " ( ", ")", " ) ").Replace(lower.String(strings.Join(strings.Fields(text), " ")))
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
