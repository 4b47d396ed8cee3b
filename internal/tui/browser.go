package tui

import (
	"fmt"
	"sort"
	"strings"

	"plainsight/internal/docs"
	"plainsight/internal/store"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type browserItem struct {
	id     string
	status string
}

type browserModel struct {
	layout      docs.Layout
	items       []browserItem
	filter      textinput.Model
	viewport    viewport.Model
	renderer    *glamour.TermRenderer
	cursor      int
	viewing     string
	loaded      bool
	err         error
	width       int
	height      int
	initialized bool
}

// artifactsMsg is sent when the artifact list has been loaded.
type artifactsMsg struct {
	items []browserItem
	err   error
}

func newBrowserModel(cfg Config) browserModel {
	ti := textinput.New()
	ti.Placeholder = "Filter documents..."
	ti.CharLimit = 200
	ti.Focus()

	return browserModel{
		layout: docs.Layout{Root: cfg.Settings.DocsRoot(cfg.Root)},
		filter: ti,
	}
}

func loadArtifacts(cfg Config) tea.Cmd {
	return func() tea.Msg {
		st, err := store.ReadState(cfg.ctx, cfg.Settings.CachePath(cfg.Root))
		if err != nil {
			return artifactsMsg{err: err}
		}
		items := make([]browserItem, 0, len(st.Artifacts))
		for id, e := range st.Artifacts {
			if e.Content == "" {
				continue
			}
			items = append(items, browserItem{id: id, status: e.Status})
		}
		// Project-level documents first, then files in path order.
		sort.Slice(items, func(i, j int) bool {
			pi, pj := isProjectLevel(items[i].id), isProjectLevel(items[j].id)
			if pi != pj {
				return pi
			}
			return items[i].id < items[j].id
		})
		return artifactsMsg{items: items}
	}
}

func isProjectLevel(id string) bool {
	return id == docs.StageProjectSummary || id == docs.StageArchitecture
}

func (m *browserModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + borders/gaps (1 line).
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.filter.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}
	m.initialized = true
	m.refresh()
}

// visible returns the items matching the filter.
func (m browserModel) visible() []browserItem {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if q == "" {
		return m.items
	}
	var out []browserItem
	for _, it := range m.items {
		if strings.Contains(strings.ToLower(it.id), q) {
			out = append(out, it)
		}
	}
	return out
}

func (m *browserModel) open(id string) {
	a, err := m.layout.Read(id)
	if err != nil {
		m.viewport.SetContent(errorStyle.Render("Error: " + err.Error()))
	} else {
		m.viewport.SetContent(m.renderMarkdown(docs.Body(a)))
	}
	m.viewing = id
	m.filter.Blur()
	m.viewport.GotoTop()
}

func (m browserModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// refresh redraws the list when no document is open.
func (m *browserModel) refresh() {
	if m.viewing != "" {
		return
	}
	m.viewport.SetContent(m.renderList())
}

func (m browserModel) renderList() string {
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if !m.loaded {
		return dimStyle.Render("Loading documents...")
	}
	items := m.visible()
	if len(items) == 0 {
		return dimStyle.Render("No documents match.")
	}
	var sb strings.Builder
	for i, it := range items {
		cursor := "  "
		style := listItemStyle
		if i == m.cursor {
			cursor = "▸ "
			style = selectedStyle
		}
		line := cursor + style.Render(it.id)
		if it.status != "done" {
			line += " " + statusStyle(it.status).Render("("+it.status+")")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m browserModel) Update(msg tea.Msg) (browserModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		if m.viewing != "" {
			m.open(m.viewing)
		}
		return m, nil

	case artifactsMsg:
		m.loaded = true
		m.items = msg.items
		m.err = msg.err
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.viewing != "" {
			switch msg.Type {
			case tea.KeyEsc:
				m.viewing = ""
				m.filter.Focus()
				m.refresh()
				return m, nil
			}
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		items := m.visible()
		switch msg.Type {
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}
			m.refresh()
			return m, nil
		case tea.KeyDown:
			if m.cursor < len(items)-1 {
				m.cursor++
			}
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			if m.cursor < len(items) {
				m.open(items[m.cursor].id)
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		cmds = append(cmds, cmd)
		if n := len(m.visible()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		m.refresh()
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m browserModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	statusText := fmt.Sprintf("%d documents • ↑/↓ select • Enter open • Esc quit", len(m.visible()))
	if m.viewing != "" {
		statusText = m.viewing + " • ↑/↓ scroll • Esc back"
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(" plainsight • " + statusText)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.filter.View(),
	)
}
