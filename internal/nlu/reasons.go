package nlu

import (
	"strings"

	"leavebot/internal/model"
)

// reasonKeywords maps word stems to canonical reasons. Order matters: the
// first category with a hit wins.
var reasonKeywords = []struct {
	reason string
	stems  []string
}{
	{model.ReasonHealth, []string{
		"sick", "ill", "health", "doctor", "hospital", "clinic", "fever",
		"өвч", "эмнэл", "эмч", "эрүүл мэнд", "халуур", "шүд",
		"ovch", "övch", "uvch", "emnel", "emch", "eruul mend", "haluur", "shud",
	}},
	{model.ReasonPersonal, []string{
		"personal", "private",
		"хувийн", "huviin", "hubiin",
	}},
	{model.ReasonFamily, []string{
		"family", "child", "kid", "wedding", "funeral",
		"гэр бүл", "хүүхэд", "хурим", "оршуулга",
		"ger bul", "ger bvl", "geriin", "huuhed", "hurim",
	}},
	{model.ReasonUrgent, []string{
		"urgent", "emergency",
		"яаралтай", "яарал",
		"yaraltai", "yaaraltai",
	}},
}

// CanonicalReason returns the canonical phrase for the first reason category
// whose keywords appear in text.
func CanonicalReason(text string) (string, bool) {
	s := normalize(text)
	if s == "" {
		return "", false
	}
	words := strings.Fields(s)
	for _, entry := range reasonKeywords {
		for _, stem := range entry.stems {
			if matchStem(s, words, stem) {
				return entry.reason, true
			}
		}
	}
	return "", false
}

// matchStem matches multi-word stems as substrings and single-word stems as
// word prefixes, so "ill" does not fire on "will".
func matchStem(s string, words []string, stem string) bool {
	if strings.Contains(stem, " ") {
		return strings.Contains(s, stem)
	}
	for _, w := range words {
		if strings.HasPrefix(w, stem) {
			return true
		}
	}
	return false
}
