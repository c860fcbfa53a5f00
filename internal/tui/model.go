// Package tui renders signal reports for terminals and hosts the
// interactive manual-open prompt used by the CLI and the SSH server.
package tui

import (
	"context"
	"strings"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/service"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Runner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.Report, error)
	Latest(ctx context.Context, profile string) (*service.Report, error)
}

type state int

const (
	stateInput state = iota
	stateRunning
	stateDone
)

type reportMsg struct {
	report *service.Report
	err    error
}

// Options tune a Model.
type Options struct {
	Profile string
	Trigger string
	// QuitOnReport ends the program once a run finishes.
	QuitOnReport bool
	// MaxColumns caps the feature columns in the recent table.
	MaxColumns int
	// Greeting is shown above the prompt.
	Greeting string
}

// Model asks for an optional manual open, runs the pipeline and shows
// the report. Press r to run again, l for the latest stored run, q to quit.
type Model struct {
	runner  Runner
	opts    Options
	input   textinput.Model
	spinner spinner.Model
	state   state
	report  *service.Report
	err     error
	width   int
}

func New(runner Runner, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "today's open, blank if unknown"
	ti.CharLimit = 16
	ti.Width = 32
	ti.Focus()

	return Model{
		runner:  runner,
		opts:    opts,
		input:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Result returns the last report or error once the program exits.
func (m Model) Result() (*service.Report, error) {
	return m.report, m.err
}

func (m *Model) SetSize(width, _ int) {
	m.width = width
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case reportMsg:
		m.state = stateDone
		m.report, m.err = msg.report, msg.err
		if m.opts.QuitOnReport {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if m.state != stateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch m.state {
		case stateInput:
			if msg.Type == tea.KeyEnter {
				return m.submit()
			}
		case stateDone:
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "r":
				m.state = stateInput
				m.err = nil
				m.input.SetValue("")
				return m, textinput.Blink
			case "l":
				m.state = stateRunning
				return m, tea.Batch(m.spinner.Tick, m.latestCmd())
			}
			return m, nil
		default:
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	open, err := service.ParseManualOpen(m.input.Value())
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.state = stateRunning
	return m, tea.Batch(m.spinner.Tick, m.runCmd(open))
}

func (m Model) runCmd(open *float64) tea.Cmd {
	req := service.RunRequest{Profile: m.opts.Profile, ManualOpen: open, Trigger: m.opts.Trigger}
	return func() tea.Msg {
		report, err := m.runner.Run(context.Background(), req)
		return reportMsg{report: report, err: err}
	}
}

func (m Model) latestCmd() tea.Cmd {
	profile := m.opts.Profile
	return func() tea.Msg {
		report, err := m.runner.Latest(context.Background(), profile)
		return reportMsg{report: report, err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder
	if m.opts.Greeting != "" {
		b.WriteString(titleStyle.Render(m.opts.Greeting) + "\n\n")
	}

	switch m.state {
	case stateInput:
		b.WriteString("Manual open for " + domain.PrimarySymbol + ":\n")
		b.WriteString(m.input.View() + "\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
		}
		b.WriteString(mutedStyle.Render("enter to run, esc to quit"))
	case stateRunning:
		b.WriteString(m.spinner.View() + " assembling the panel and running the ensemble...")
	case stateDone:
		if m.err != nil {
			b.WriteString(RenderError(m.err) + "\n")
		} else if m.report != nil {
			out := RenderReport(m.report, m.opts.MaxColumns)
			if m.width > 0 {
				out = lipgloss.NewStyle().MaxWidth(m.width).Render(out)
			}
			b.WriteString(out + "\n")
		}
		b.WriteString("\n" + mutedStyle.Render("r run again, l latest, q quit"))
	}
	return b.String()
}
