// Package memory holds the context carried between runs and the project
// facts derived from the index on every run.
package memory

import (
	"strings"
	"time"
)

// maxHistory bounds the number of history entries kept.
const maxHistory = 20

// Memory is the accumulated cross-run context. The orchestrator mutates it
// only after a project-level stage reaches Done, from a single goroutine.
type Memory struct {
	ProjectSummary string    `json:"project_summary,omitempty"`
	Architecture   string    `json:"architecture,omitempty"`
	History        []Entry   `json:"history,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Entry records one successful project-level generation.
type Entry struct {
	Stage   string    `json:"stage"`
	RunID   string    `json:"run_id"`
	At      time.Time `json:"at"`
	Excerpt string    `json:"excerpt"`
}

// Clone returns a deep copy.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return &Memory{}
	}
	cp := *m
	cp.History = append([]Entry(nil), m.History...)
	return &cp
}

// Record stores the output of a completed project-level stage.
func (m *Memory) Record(stage, runID, output string, at time.Time) {
	switch stage {
	case StageProjectSummary:
		m.ProjectSummary = output
	case StageArchitecture:
		m.Architecture = output
	default:
		return
	}
	m.History = append(m.History, Entry{Stage: stage, RunID: runID, At: at, Excerpt: excerpt(output, 200)})
	if len(m.History) > maxHistory {
		m.History = m.History[len(m.History)-maxHistory:]
	}
	m.UpdatedAt = at
}

// Stage names recorded in memory.
const (
	StageProjectSummary = "project_summary"
	StageArchitecture   = "architecture"
)

// excerpt returns the first paragraph of s that is not a heading, cut to n
// bytes on a rune boundary.
func excerpt(s string, n int) string {
	for _, para := range strings.Split(s, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "#") {
			continue
		}
		para = strings.Join(strings.Fields(para), " ")
		if len(para) <= n {
			return para
		}
		cut := n
		for cut > 0 && !isRuneStart(para[cut]) {
			cut--
		}
		return para[:cut] + "..."
	}
	return ""
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
