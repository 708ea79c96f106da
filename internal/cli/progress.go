package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/poll"
)

const uiPollInterval = 2 * time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// statusFetcher retrieves the current job snapshot for the progress UI.
type statusFetcher func(ctx context.Context) (poll.Snapshot, error)

// tickMsg triggers the next status fetch
type tickMsg time.Time

// statusMsg carries the fetched snapshot
type statusMsg struct {
	snap poll.Snapshot
	err  error
}

// progressModel is the bubbletea model for a server-side job.
type progressModel struct {
	title    string
	fetch    statusFetcher
	snap     poll.Snapshot
	fetched  bool
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(title string, fetch statusFetcher) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		title:    title,
		fetch:    fetch,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchStatus(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchStatus()

	case statusMsg:
		if msg.err != nil {
			// Transient failure: keep polling, the backend may recover.
			logger.Warn("status fetch failed, retrying", "error", msg.err)
			return m, tickCmd()
		}

		m.snap = msg.snap
		m.fetched = true

		if api.TerminalStatus(m.snap.Status) {
			m.done = true
			if m.snap.Status == api.StatusFailed {
				if m.snap.Message != "" {
					m.err = fmt.Errorf("%s", m.snap.Message)
				} else {
					m.err = fmt.Errorf("job failed with unknown error")
				}
			}
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if !m.fetched {
		return fmt.Sprintf("%s: loading status...\n", m.title)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Status))
	progressBar := m.progress.ViewAs(float64(m.snap.Progress) / 100)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s %d%%\n%s\n", m.title, status, progressBar, m.snap.Progress, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nJob continues in background.\n")
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s failed: %s\n", m.title, m.err))
	}

	if m.snap.Status == api.StatusCancelled {
		return m.theme.hintStyle().Render(fmt.Sprintf("\n%s cancelled.\n", m.title))
	}

	return m.theme.completedStyle().Render(fmt.Sprintf("✓ %s completed\n", m.title))
}

// fetchStatus fetches the job snapshot in a command goroutine so Update never
// blocks on the network.
func (m progressModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snap, err := m.fetch(ctx)
		return statusMsg{snap: snap, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(uiPollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunProgress runs the interactive progress UI for a server-side job.
// Returns nil on success or Ctrl+C (job keeps running), error on job failure.
// When stdout is not a terminal, falls back to plain line output.
func RunProgress(title string, fetch statusFetcher) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlainProgress(title, fetch)
	}

	p := tea.NewProgram(newProgressModel(title, fetch))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}

// runPlainProgress polls and prints one status line per change. Used when
// output is piped or redirected.
func runPlainProgress(title string, fetch statusFetcher) error {
	var last poll.Snapshot
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snap, err := fetch(ctx)
		cancel()

		if err != nil {
			logger.Warn("status fetch failed, retrying", "error", err)
		} else {
			if snap != last {
				fmt.Printf("%s: %s %d%%\n", title, snap.Status, snap.Progress)
				last = snap
			}
			if api.TerminalStatus(snap.Status) {
				if snap.Status == api.StatusFailed {
					if snap.Message != "" {
						return fmt.Errorf("%s", snap.Message)
					}
					return fmt.Errorf("%s failed", title)
				}
				return nil
			}
		}
		time.Sleep(uiPollInterval)
	}
}
