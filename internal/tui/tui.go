package tui

import (
	"context"

	"plainsight/internal/config"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewSetup
	ViewGenerating
	ViewBrowser
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r != nil && r.p != nil {
		r.p.Send(msg)
	}
}

// Config holds configuration passed from the CLI layer.
type Config struct {
	Root     string
	Settings *config.Config
	Logger   hclog.Logger

	// program is set internally so background goroutines can send messages.
	program *programRef
	ctx     context.Context
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state  ViewState
	config Config
	width  int
	height int

	welcome    welcomeModel
	setup      setupModel
	generating generateModel
	browser    browserModel
	cancel     context.CancelFunc
	err        error
}

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.ctx == nil {
		cfg.ctx = context.Background()
	}
	return Model{
		state:  ViewWelcome,
		config: cfg,
	}
}

func (m Model) Init() tea.Cmd {
	return checkCache(m.config)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewBrowser {
			var c tea.Cmd
			m.browser, c = m.browser.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			// Let a running generation stop before anything is written.
			if m.state == ViewGenerating && !m.generating.done {
				m.generating.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
				return m, nil
			}
			return m, tea.Quit
		case "q":
			if m.state != ViewBrowser && !(m.state == ViewGenerating && !m.generating.done) {
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		m.welcome, cmd = m.welcome.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && m.welcome.ready {
			switch {
			case keyMsg.Type == tea.KeyEnter:
				m.state = ViewSetup
				m.setup = setupModel{}
				return m, fetchModels(m.config)
			case keyMsg.String() == "b" && m.welcome.status != cacheNotFound:
				return m, m.transitionToBrowser()
			}
		}

	case ViewSetup:
		m.setup, cmd = m.setup.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if !m.setup.loaded || m.setup.err != nil {
			return m, nil
		}
		if m.setup.satisfied {
			return m, m.startGenerating()
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && len(m.setup.models) > 0 {
			if sel := m.setup.selectedModel(); sel != "" {
				m.config.Settings.Ollama.Model = sel
			}
			return m, m.startGenerating()
		}

	case ViewGenerating:
		m.generating, cmd = m.generating.Update(msg)
		if m.generating.done && m.generating.cancelling {
			return m, tea.Quit
		}
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.generating.done {
			return m, m.transitionToBrowser()
		}

	case ViewBrowser:
		m.browser, cmd = m.browser.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) startGenerating() tea.Cmd {
	ctx, cancel := context.WithCancel(m.config.ctx)
	m.cancel = cancel
	m.state = ViewGenerating
	m.generating = newGenerateModel()
	return tea.Batch(m.generating.spinner.Tick, runGenerate(ctx, m.config))
}

func (m *Model) transitionToBrowser() tea.Cmd {
	m.browser = newBrowserModel(m.config)
	m.browser.initViewport(m.width, m.height)
	m.state = ViewBrowser
	return loadArtifacts(m.config)
}

func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}

	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.width, m.height)
	case ViewSetup:
		return m.setup.View(m.width, m.height)
	case ViewGenerating:
		return m.generating.View(m.width, m.height)
	case ViewBrowser:
		return m.browser.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program.
func Run(ctx context.Context, cfg Config) error {
	ref := &programRef{}
	cfg.program = ref
	cfg.ctx = ctx
	model := New(cfg)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ref.p = p
	_, err := p.Run()
	return err
}
