// Package nlu turns free-form leave requests written in English, Mongolian
// Cyrillic or Latin-transliterated Mongolian into leave slots.
package nlu

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.MustParse("mn"))

// normalize lowercases text and collapses runs of whitespace and punctuation
// other than the separators used by date forms.
func normalize(text string) string {
	text = lower.String(text)
	var b strings.Builder
	space := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' || r == '/':
			b.WriteRune(r)
			space = false
		default:
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Transliterated words that only show up in Mongolian written in Latin script.
var latinMongolian = []string{
	"margaash", "unooder", "nugeedr", "chuluu", "chölöö", "avmaar", "avii", "tsag",
	"udur", "honog", "huviin", "ovchtei", "övchtei", "emnelg", "baina", "daraa", "hagas", "buten",
}

// DetectLocale returns "mn" when the text is recognisably Mongolian. ok is
// false when the text gives no signal either way.
func DetectLocale(text string) (locale string, ok bool) {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return "mn", true
		}
	}
	n := normalize(text)
	for _, word := range strings.Fields(n) {
		for _, w := range latinMongolian {
			if strings.HasPrefix(word, w) {
				return "mn", true
			}
		}
	}
	hasLetter := strings.IndexFunc(n, unicode.IsLetter) >= 0
	if hasLetter {
		return "en", true
	}
	return "", false
}

var cancelWords = map[string]bool{
	"cancel":   true,
	"stop":     true,
	"bolih":    true,
	"boli":     true,
	"boliloo":  true,
	"tsutslah": true,
	"болих":    true,
	"боль":     true,
	"болилоо":  true,
	"цуцлах":   true,
	"цуцал":    true,
}

// IsCancel reports whether the utterance asks to abandon the current request.
func IsCancel(text string) bool {
	fields := strings.Fields(normalize(text))
	if len(fields) == 0 {
		return false
	}
	return cancelWords[strings.Trim(fields[0], ".-/")]
}
