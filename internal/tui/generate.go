package tui

import (
	"context"
	"fmt"

	"plainsight/internal/llm"
	"plainsight/internal/pipeline"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type generateModel struct {
	spinner    spinner.Model
	progress   progress.Model
	phase      string
	artifact   string
	completed  int
	total      int
	done       bool
	cancelling bool
	report     *pipeline.Report
	err        error
}

func newGenerateModel() generateModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return generateModel{
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		phase:    phaseLabel(pipeline.PhaseIndex),
	}
}

// generateDoneMsg is sent when the run completes.
type generateDoneMsg struct {
	report *pipeline.Report
	err    error
}

// progressMsg forwards a pipeline event.
type progressMsg pipeline.Event

func phaseLabel(phase string) string {
	switch phase {
	case pipeline.PhaseIndex:
		return "Indexing source files..."
	case pipeline.PhaseFiles:
		return "Documenting files..."
	case pipeline.PhaseProject:
		return "Writing project summary and architecture..."
	case pipeline.PhaseWrite:
		return "Writing documents..."
	default:
		return "Saving cache..."
	}
}

func runGenerate(ctx context.Context, cfg Config) tea.Cmd {
	return func() tea.Msg {
		cc := cfg.Settings.ClientConfig()
		cc.Logger = cfg.Logger
		pcfg := pipeline.FromConfig(cfg.Root, cfg.Settings, llm.NewOllamaClient(cc), cfg.Logger)
		pcfg.Observer = func(ev pipeline.Event) {
			cfg.program.send(progressMsg(ev))
		}
		report, err := pipeline.New(pcfg).Run(ctx)
		return generateDoneMsg{report: report, err: err}
	}
}

func (m generateModel) Update(msg tea.Msg) (generateModel, tea.Cmd) {
	switch msg := msg.(type) {
	case generateDoneMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, nil
	case progressMsg:
		if msg.Total > 0 || msg.Phase == pipeline.PhaseIndex || msg.Phase == pipeline.PhaseFlush {
			m.completed, m.total = msg.Completed, msg.Total
		}
		m.phase = phaseLabel(msg.Phase)
		m.artifact = msg.Artifact
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m generateModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Generating") + "\n\n"

	if m.done {
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			if m.report == nil {
				s += dimStyle.Render("  Nothing was written. Press q to quit.") + "\n"
				return s
			}
		}
		r := m.report
		if r.OK() {
			s += successStyle.Render("  ✓ Documentation up to date") + "\n\n"
		} else {
			s += warnStyle.Render("  ⚠ Finished with problems") + "\n\n"
		}
		s += fmt.Sprintf("  Files:     %d indexed, %d unchanged, %d removed\n",
			r.Index.Files, r.Index.Reused, len(r.Index.Removed))
		s += fmt.Sprintf("  Artifacts: %d generated, %d reused, %d degraded, %d failed\n",
			r.Generated, r.Reused, r.Degraded, r.Failed)
		if r.FailedWrites > 0 {
			s += errorStyle.Render(fmt.Sprintf("  %d output files could not be written", r.FailedWrites)) + "\n"
		}
		s += dimStyle.Render("  Output: "+r.DocsRoot) + "\n\n"
		s += dimStyle.Render("  Press Enter to browse, or q to quit.") + "\n"
		return s
	}

	if m.cancelling {
		s += warnStyle.Render("  Stopping; nothing from this run will be written...") + "\n"
		return s
	}

	s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.phase)
	if m.total > 0 {
		s += "  " + m.progress.ViewAs(float64(m.completed)/float64(m.total)) + "\n"
		s += fmt.Sprintf("  %d / %d\n", m.completed, m.total)
	}
	if m.artifact != "" {
		s += dimStyle.Render("  "+m.artifact) + "\n"
	}
	s += "\n"
	s += dimStyle.Render("  Local models can take a while on large codebases. Ctrl+C stops.") + "\n"
	return s
}
