package nlu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leavebot/internal/jsonutil"
	"leavebot/internal/llm"
	"leavebot/internal/logging"
	"leavebot/internal/model"
)

const extractSystemPrompt = `You extract leave request details from a chat message.
The message may be English, Mongolian Cyrillic or Mongolian written in Latin letters.
Today is %s (%s).

Return ONLY a JSON object with exactly these keys:
  "start_date": first day of leave as YYYY-MM-DD, or ""
  "end_date":   last day of leave as YYYY-MM-DD, or ""
  "hours":      duration as written, e.g. "full day", "half day", "2 tsag", or ""
  "reason":     short reason, or ""

Date aliases:
  today = өнөөдөр = unooder
  tomorrow = маргааш = margaash
  day after tomorrow = нөгөөдөр = nugeedr
  next week = дараа долоо хоног = daraa 7 honog
  "1dehed" / "1-р өдөр" = Monday, "2dahad" = Tuesday, ... "7dohod" = Sunday
Duration aliases:
  full day = бүтэн өдөр = buten udur
  half day = хагас өдөр = hagas udur
  N hours = N цаг = N tsag

Use "" for anything the message does not state. Do not guess.`

// Extractor pulls leave slots out of an utterance. It asks the model first
// and falls back to the rule-based extractor when the model is unavailable
// or its answer cannot be decoded.
type Extractor struct {
	llm llm.Completer
}

func NewExtractor(c llm.Completer) *Extractor {
	return &Extractor{llm: c}
}

type extractedSlots struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Hours     any    `json:"hours"`
	Reason    string `json:"reason"`
}

// Extract never fails; the zero LeaveSlots means nothing was recognised.
func (e *Extractor) Extract(ctx context.Context, utterance string, today time.Time, userName string) model.LeaveSlots {
	log := logging.FromContext(ctx).With().Str("component", "extractor").Logger()

	if strings.TrimSpace(utterance) == "" {
		return model.LeaveSlots{}
	}

	slots, err := e.extractLLM(ctx, utterance, today, userName)
	if err != nil {
		log.Warn().Err(err).Msg("llm extraction failed, using rules")
		slots = ExtractRules(utterance, today)
	}
	if slots.EndDate == "" {
		slots.EndDate = EndForDuration(slots.StartDate, slots.Hours)
	}
	slots.DeriveEndDate()

	log.Debug().
		Str("start_date", slots.StartDate).
		Str("end_date", slots.EndDate).
		Str("hours", slots.Hours).
		Str("reason", slots.Reason).
		Strs("missing", slots.Missing()).
		Msg("slots extracted")
	return slots
}

func (e *Extractor) extractLLM(ctx context.Context, utterance string, today time.Time, userName string) (model.LeaveSlots, error) {
	if e.llm == nil {
		return model.LeaveSlots{}, fmt.Errorf("no model configured")
	}
	user := utterance
	if userName != "" {
		user = fmt.Sprintf("From %s: %s", userName, utterance)
	}
	raw, err := e.llm.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(extractSystemPrompt, format(today), today.Weekday()),
		User:        user,
		MaxTokens:   200,
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return model.LeaveSlots{}, err
	}

	var out extractedSlots
	if err := jsonutil.DecodeWithFallback(raw, &out); err != nil {
		return model.LeaveSlots{}, fmt.Errorf("decode extraction: %w", err)
	}
	return cleanSlots(out, today), nil
}

// cleanSlots runs model output through the same resolvers as the rule path so
// both produce the same vocabulary.
func cleanSlots(in extractedSlots, today time.Time) model.LeaveSlots {
	var s model.LeaveSlots
	s.StartDate = cleanDate(in.StartDate, today)
	s.EndDate = cleanDate(in.EndDate, today)
	// An end before the start is dropped and asked for again.
	if s.StartDate != "" && s.EndDate != "" && DaySpan(s.StartDate, s.EndDate) == 0 {
		s.EndDate = ""
	}
	s.Hours = cleanHours(in.Hours)
	if reason := strings.TrimSpace(in.Reason); reason != "" {
		if canonical, ok := CanonicalReason(reason); ok {
			s.Reason = canonical
		} else {
			s.Reason = reason
		}
	}
	return s
}

func cleanDate(v string, today time.Time) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if IsISODate(v) {
		return v
	}
	return ResolveDate(v, today)
}

func cleanHours(v any) string {
	var text string
	switch h := v.(type) {
	case string:
		text = strings.TrimSpace(h)
	case float64:
		if h <= 0 {
			return ""
		}
		text = formatNumber(h)
	default:
		return ""
	}
	if text == "" {
		return ""
	}
	if label, _ := NormalizeHours(text); label != "" {
		return label
	}
	// A bare number from the model means hours.
	if label, _ := NormalizeHours(text + " tsag"); label != "" {
		return label
	}
	return ""
}

// ExtractRules is the deterministic extractor: date resolver, hours
// normalizer and the reason keyword table applied to the whole utterance.
func ExtractRules(utterance string, today time.Time) model.LeaveSlots {
	var s model.LeaveSlots
	s.StartDate = ResolveDate(utterance, today)
	s.Hours, _ = NormalizeHours(utterance)
	s.Reason, _ = CanonicalReason(utterance)
	return s
}
