package prompt

import (
	"strings"
	"unicode/utf8"
)

// Window is a contiguous run of source lines shown to the model.
type Window struct {
	StartLine int
	EndLine   int
	Content   string
}

type windowSize struct {
	lines    int
	overlap  int
	maxChars int
}

func sizeFor(language string) windowSize {
	switch language {
	case "python":
		return windowSize{lines: 100, overlap: 14, maxChars: 5200}
	case "javascript", "typescript":
		return windowSize{lines: 110, overlap: 18, maxChars: 5600}
	case "java":
		return windowSize{lines: 95, overlap: 16, maxChars: 5400}
	default:
		return windowSize{lines: 120, overlap: 20, maxChars: 6000}
	}
}

// Windows splits src at line boundaries into overlapping windows bounded by
// both a line count and a character count that depend on the language.
func Windows(src []byte, language string) []Window {
	text := strings.TrimRight(string(src), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	size := sizeFor(language)

	var out []Window
	for start := 0; start < len(lines); {
		end := start + size.lines
		if end > len(lines) {
			end = len(lines)
		}
		for end > start+1 && charLen(lines[start:end]) > size.maxChars {
			end--
		}
		out = append(out, Window{
			StartLine: start + 1,
			EndLine:   end,
			Content:   strings.Join(lines[start:end], "\n"),
		})
		if end >= len(lines) {
			break
		}
		overlap := size.overlap
		if overlap >= end-start {
			overlap = end - start - 1
		}
		start = end - overlap
	}
	return out
}

func charLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}

// clamp keeps the first n windows and cuts each to maxChars.
func clamp(ws []Window, n, maxChars int) []Window {
	if len(ws) > n {
		ws = ws[:n]
	}
	out := make([]Window, len(ws))
	for i, w := range ws {
		w.Content = truncate(w.Content, maxChars)
		out[i] = w
	}
	return out
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n..."
}
