package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"plainsight/internal/llm"
)

// ErrUnusableOutput is matched by every rejection from Clean.
var ErrUnusableOutput = errors.New("unusable model output")

// Heading returns the heading a reply for task must start with.
func Heading(task llm.Task) string {
	switch task {
	case llm.TaskSummarize:
		return "## Purpose"
	case llm.TaskArchitecture:
		return "## System Context"
	default:
		return "## Overview"
	}
}

var refusals = []string{
	"i cannot", "i can't", "i'm unable", "i am unable", "as an ai",
	"i don't have access", "i do not have access", "i am not able",
	"cannot help with", "can't help with",
}

// Clean normalises a raw reply: a wrapping code fence is stripped, a JSON
// wrapper holding Markdown is unwrapped, and anything before the expected
// heading is dropped. Empty replies, bare JSON and refusals are rejected.
func Clean(task llm.Task, raw string) (string, error) {
	out := stripFence(raw)
	out = unwrapJSON(task, out)
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty reply for %s", ErrUnusableOutput, task)
	}
	trimmed := strings.TrimLeftFunc(out, unicode.IsSpace)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return "", fmt.Errorf("%w: JSON payload instead of markdown for %s", ErrUnusableOutput, task)
	}

	heading := Heading(task)
	if idx := strings.Index(out, heading); idx >= 0 {
		return strings.TrimSpace(out[idx:]), nil
	}
	// Without the heading, a short reply opening with a refusal is not
	// documentation.
	if isRefusal(out) {
		return "", fmt.Errorf("%w: refusal for %s", ErrUnusableOutput, task)
	}
	return strings.TrimSpace(out), nil
}

func isRefusal(s string) bool {
	head := strings.ToLower(s)
	if len(head) > 300 {
		head = head[:300]
	}
	for _, r := range refusals {
		if strings.Contains(head, r) {
			return true
		}
	}
	return false
}

func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	t = strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```")
	first, rest, found := strings.Cut(t, "\n")
	if found && isLangTag(first) {
		t = rest
	}
	return strings.TrimSpace(t)
}

func isLangTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

var jsonKeys = []string{
	"summary_markdown", "docs_markdown", "project_summary_markdown", "architecture_markdown", "markdown",
}

// unwrapJSON extracts a Markdown string from a JSON reply. Replies that are
// not JSON, or hold no Markdown, are returned unchanged.
func unwrapJSON(task llm.Task, s string) string {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return s
	}
	if obj, ok := v.(map[string]any); ok {
		if inner, ok := obj["result"].(map[string]any); ok {
			obj = inner
		}
		for _, k := range jsonKeys {
			if text, ok := obj[k].(string); ok {
				return strings.TrimSpace(text)
			}
		}
	}
	if text, ok := findMarkdown(v, Heading(task)); ok {
		return strings.TrimSpace(text)
	}
	return s
}

func findMarkdown(v any, heading string) (string, bool) {
	switch t := v.(type) {
	case string:
		if strings.Contains(t, heading) || strings.Contains(t, "## ") {
			return t, true
		}
	case []any:
		for _, item := range t {
			if s, ok := findMarkdown(item, heading); ok {
				return s, true
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := findMarkdown(t[k], heading); ok {
				return s, true
			}
		}
	}
	return "", false
}
