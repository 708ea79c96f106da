package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/async"
)

// Interactive repo search with debounced as-you-type queries. Each keystroke
// bumps a generation; only the newest generation may issue a request, and a
// response tagged with a stale generation is discarded so slow responses
// never overwrite newer results.

// searchTickMsg fires when the debounce window for a generation elapses.
type searchTickMsg struct {
	gen uint64
}

// searchResultMsg carries results for the generation that requested them.
type searchResultMsg struct {
	gen         uint64
	suggestions []api.RepoSuggestion
	err         error
}

type searchModel struct {
	input   textinput.Model
	gen     uint64
	results []api.RepoSuggestion
	errMsg  string
	theme   Theme
}

func newSearchModel() searchModel {
	ti := textinput.New()
	ti.Placeholder = "search repositories..."
	ti.Focus()

	return searchModel{
		input: ti,
		theme: defaultTheme,
	}
}

func (m searchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		if m.input.Value() != before {
			m.gen++
			gen := m.gen
			return m, tea.Batch(cmd, tea.Tick(async.DefaultDebounce, func(time.Time) tea.Msg {
				return searchTickMsg{gen: gen}
			}))
		}
		return m, cmd

	case searchTickMsg:
		// Only the newest keystroke's window fires a request.
		if msg.gen != m.gen {
			return m, nil
		}
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			m.results = nil
			return m, nil
		}
		return m, searchCmd(msg.gen, query)

	case searchResultMsg:
		// Discard responses that arrive after a newer request was issued.
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.results = msg.suggestions
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m searchModel) View() tea.View {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.errMsg != "" {
		b.WriteString(m.theme.errorStyle().Render(m.errMsg))
		b.WriteString("\n")
	}

	for _, s := range m.results {
		visibility := "public"
		if s.Private {
			visibility = "private"
		}
		b.WriteString(fmt.Sprintf("  %-40s %s\n", s.FullName, visibility))
	}
	if len(m.results) == 0 && m.errMsg == "" {
		b.WriteString(m.theme.hintStyle().Render("  type to search, esc to quit\n"))
	}

	return tea.NewView(b.String())
}

func searchCmd(gen uint64, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := apiClient.SearchRepos(ctx, query, api.PageOptions{})
		if err != nil {
			return searchResultMsg{gen: gen, err: err}
		}
		return searchResultMsg{gen: gen, suggestions: result.Suggestions}
	}
}

func runRepoSearchUI() error {
	p := tea.NewProgram(newSearchModel())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("search UI error: %w", err)
	}
	return nil
}
