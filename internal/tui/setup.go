package tui

import (
	"fmt"
	"sort"
	"strings"

	"plainsight/internal/llm"

	tea "github.com/charmbracelet/bubbletea"
)

type setupModel struct {
	models     []llm.Model
	configured string
	missing    []string
	cursor     int
	loaded     bool
	// satisfied is set when every configured model is available and no
	// choice is needed.
	satisfied bool
	err       error
}

// fetchModelsMsg is sent when models have been fetched from Ollama.
type fetchModelsMsg struct {
	models     []llm.Model
	configured string
	missing    []string
	err        error
}

func fetchModels(cfg Config) tea.Cmd {
	return func() tea.Msg {
		client := llm.NewOllamaClient(cfg.Settings.ClientConfig())
		models, err := client.Models(cfg.ctx)
		if err != nil {
			return fetchModelsMsg{err: err}
		}
		return fetchModelsMsg{
			models:     models,
			configured: cfg.Settings.Ollama.Model,
			missing:    client.MissingFrom(models),
		}
	}
}

func (m setupModel) Update(msg tea.Msg) (setupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case fetchModelsMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.configured = msg.configured
		m.missing = msg.missing
		m.satisfied = len(msg.missing) == 0

		// Embedding models cannot generate text.
		for _, model := range msg.models {
			if !strings.Contains(strings.ToLower(model.Name), "embed") {
				m.models = append(m.models, model)
			}
		}
		sort.Slice(m.models, func(i, j int) bool { return m.models[i].Name < m.models[j].Name })
		for i, model := range m.models {
			if model.Name == m.configured || model.Name == m.configured+":latest" {
				m.cursor = i
				break
			}
		}

	case tea.KeyMsg:
		if !m.loaded || m.err != nil {
			return m, nil
		}
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.models)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m setupModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Model Selection") + "\n\n"

	if !m.loaded {
		s += dimStyle.Render("  Fetching models from Ollama...") + "\n"
		return s
	}

	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
		s += dimStyle.Render("  Make sure Ollama is running and try again.") + "\n"
		s += dimStyle.Render("  Press q to quit.") + "\n"
		return s
	}

	if len(m.models) == 0 {
		s += warnStyle.Render("  No generation models found in Ollama.") + "\n"
		s += dimStyle.Render("  Pull a model first: ollama pull "+llm.DefaultModel) + "\n"
		return s
	}

	s += warnStyle.Render("  Not available: "+strings.Join(m.missing, ", ")) + "\n"
	s += dimStyle.Render("  Pick the model used for every task without its own model") + "\n\n"
	for i, model := range m.models {
		cursor := "  "
		style := listItemStyle
		if i == m.cursor {
			cursor = "▸ "
			style = selectedStyle
		}
		s += fmt.Sprintf("  %s%s\n", cursor, style.Render(fmt.Sprintf("%s (%s)", model.Name, llm.FormatSize(model.Size))))
	}
	s += "\n"
	s += helpStyle.Render("  ↑/↓ navigate • Enter generate") + "\n"
	return s
}

func (m setupModel) selectedModel() string {
	if len(m.models) > 0 && m.cursor < len(m.models) {
		return m.models[m.cursor].Name
	}
	return ""
}
