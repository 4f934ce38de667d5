package nlu

import (
	"context"
	"strings"

	"leavebot/internal/llm"
	"leavebot/internal/logging"
)

const intentSystemPrompt = `You classify chat messages sent to an HR assistant.
Messages may be English, Mongolian Cyrillic or Mongolian written in Latin letters.
Does this message ask for time off? Answer YES or NO.`

var leaveKeywords = []string{
	"чөлөө", "амрах", "амралт", "өвчтэй", "эмнэлэг",
	"chuluu", "chölöö", "chuloo", "avmaar", "avii", "amrah", "ovchtei", "emnelg",
	"sick", "leave", "day off", "time off", "vacation", "absence", "pto",
}

// IntentClassifier decides whether an utterance is a leave request.
type IntentClassifier struct {
	llm llm.Completer
}

func NewIntentClassifier(c llm.Completer) *IntentClassifier {
	return &IntentClassifier{llm: c}
}

// IsLeaveRequest asks the model and falls back to keywords when the call
// fails or the answer is neither YES nor NO.
func (c *IntentClassifier) IsLeaveRequest(ctx context.Context, utterance string) bool {
	if strings.TrimSpace(utterance) == "" {
		return false
	}
	log := logging.FromContext(ctx).With().Str("component", "intent").Logger()

	if c.llm != nil {
		answer, err := c.llm.Complete(ctx, llm.Request{
			System:      intentSystemPrompt,
			User:        utterance,
			MaxTokens:   10,
			Temperature: 0.1,
		})
		if err == nil {
			switch a := strings.ToUpper(strings.TrimSpace(answer)); {
			case strings.HasPrefix(a, "YES"):
				return true
			case strings.HasPrefix(a, "NO"):
				return false
			default:
				log.Warn().Str("answer", answer).Msg("unexpected classifier answer, using keywords")
			}
		} else {
			log.Warn().Err(err).Msg("llm classification failed, using keywords")
		}
	}
	return KeywordIntent(utterance)
}

// KeywordIntent is the rule-based classifier. Besides the trigger words it
// accepts a message that names a date together with a duration or reason,
// which is how people write "margaash buten udur huviin" without saying
// "leave".
func KeywordIntent(utterance string) bool {
	s := normalize(utterance)
	if s == "" {
		return false
	}
	words := strings.Fields(s)
	for _, k := range leaveKeywords {
		if matchStem(s, words, k) {
			return true
		}
	}
	return hasDateWithDetail(utterance)
}

func hasDateWithDetail(utterance string) bool {
	if !mentionsDate(utterance) {
		return false
	}
	if label, _ := NormalizeHours(utterance); label != "" {
		return true
	}
	_, ok := CanonicalReason(utterance)
	return ok
}

// mentionsDate reports whether ResolveDate would find a date, without
// needing a reference day.
func mentionsDate(utterance string) bool {
	s := normalize(utterance)
	if containsAny(s, todayWords...) || containsAny(s, tomorrowWords...) || containsAny(s, dayAfterWords...) {
		return true
	}
	if _, ok := nextWeekday(s); ok {
		return true
	}
	return isoRe.MatchString(s) || dottedRe.MatchString(s)
}
