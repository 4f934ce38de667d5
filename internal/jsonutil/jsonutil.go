// Package jsonutil decodes JSON produced by language models, which often
// arrives wrapped in code fences or surrounded by prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyInput = errors.New("empty json input")

// DecodeWithFallback decodes raw into out. It tries, in order: the raw text,
// the body of a ``` fenced block, and the outermost {...} span.
func DecodeWithFallback(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrEmptyInput
	}

	firstErr := json.Unmarshal([]byte(raw), out)
	if firstErr == nil {
		return nil
	}

	if body, ok := fencedBody(raw); ok {
		if err := json.Unmarshal([]byte(body), out); err == nil {
			return nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("decode json: %w", firstErr)
}

func fencedBody(raw string) (string, bool) {
	open := strings.Index(raw, "```")
	if open < 0 {
		return "", false
	}
	rest := raw[open+3:]
	// Drop the info string ("json") on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	closing := strings.Index(rest, "```")
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:closing]), true
}
