package tui

import (
	"errors"
	"fmt"

	"plainsight/internal/pipeline"
	"plainsight/internal/store"

	tea "github.com/charmbracelet/bubbletea"
)

type cacheStatus int

const (
	cacheNotFound cacheStatus = iota
	cacheReady
	cacheStale
)

type welcomeModel struct {
	status      cacheStatus
	staleReason string
	meta        store.Meta
	artifacts   int
	incomplete  int
	err         error
	ready       bool // true once the check has completed
}

// checkCacheMsg is sent after checking the cache.
type checkCacheMsg struct {
	status      cacheStatus
	staleReason string
	meta        store.Meta
	artifacts   int
	incomplete  int
	err         error
}

func checkCache(cfg Config) tea.Cmd {
	return func() tea.Msg {
		st, err := store.ReadState(cfg.ctx, cfg.Settings.CachePath(cfg.Root))
		if errors.Is(err, store.ErrNoCache) {
			return checkCacheMsg{status: cacheNotFound}
		}
		if err != nil {
			return checkCacheMsg{status: cacheNotFound, err: err}
		}
		if st.Empty() {
			return checkCacheMsg{status: cacheNotFound}
		}

		msg := checkCacheMsg{status: cacheReady, meta: st.Meta, artifacts: len(st.Artifacts)}
		for _, e := range st.Artifacts {
			if e.Status != pipeline.Done.String() {
				msg.incomplete++
			}
		}
		fp := pipeline.FromConfig(cfg.Root, cfg.Settings, nil, nil).Fingerprint
		switch {
		case st.Meta.SettingsFingerprint != fp:
			msg.status = cacheStale
			msg.staleReason = "settings changed since the last run"
		case msg.incomplete > 0:
			msg.status = cacheStale
			msg.staleReason = fmt.Sprintf("%d artifacts failed or are incomplete", msg.incomplete)
		}
		return msg
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkCacheMsg:
		m.status = msg.status
		m.staleReason = msg.staleReason
		m.meta = msg.meta
		m.artifacts = msg.artifacts
		m.incomplete = msg.incomplete
		m.err = msg.err
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ Plainsight") + "\n"
	s += subtitleStyle.Render("  Layered documentation for your code, generated locally") + "\n\n"

	if !m.ready {
		s += dimStyle.Render("  Checking cache...") + "\n"
		return s
	}

	switch m.status {
	case cacheReady:
		s += successStyle.Render(fmt.Sprintf("  ✓ %d documents up to date", m.artifacts)) + "\n"
	case cacheNotFound:
		s += warnStyle.Render("  ✗ No documentation generated yet") + "\n"
		if m.err != nil {
			s += dimStyle.Render(fmt.Sprintf("    cache unreadable, it will be rebuilt: %v", m.err)) + "\n"
		}
	case cacheStale:
		s += warnStyle.Render("  ⚠ Documentation needs a refresh") + "\n"
		s += dimStyle.Render("    "+m.staleReason) + "\n"
	}
	if !m.meta.LastRun.IsZero() {
		s += dimStyle.Render(fmt.Sprintf("    last run %s", m.meta.LastRun.Local().Format("2006-01-02 15:04"))) + "\n"
	}

	s += "\n"
	if m.status == cacheNotFound {
		s += dimStyle.Render("  Press Enter to generate") + "\n"
	} else {
		s += dimStyle.Render("  Press Enter to refresh • b to browse") + "\n"
	}
	return s
}
