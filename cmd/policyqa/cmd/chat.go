package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/output"
	"github.com/policyqa/policyqa/internal/qaworkflow"
	"github.com/policyqa/policyqa/internal/ui"
)

func newChatCmd() *cobra.Command {
	var policyID int64
	var sessionID string
	var query string
	engOpts := engineOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask a question about a policy",
		Long: `Loads a policy into a fresh session and asks it a question.

With --query, runs one question and prints the answer. Without
--query, drops into an interactive terminal chat session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := buildEngine(engOpts)
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}

			sid := sessionIDOrNew(sessionID)
			if err := eng.qa.InitPolicy(cmd.Context(), sid, policyID); err != nil {
				return fmt.Errorf("loading policy %d: %w", policyID, err)
			}
			defer eng.qa.Cleanup(sid)

			if query != "" {
				return runOneShotChat(cmd.Context(), cmd, eng.qa, sid, query)
			}
			return runInteractiveChat(cmd.Context(), eng.qa, sid)
		},
	}

	cmd.Flags().Int64Var(&policyID, "policy", 0, "Policy ID to load for this session")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (a fresh UUID is generated if omitted)")
	cmd.Flags().StringVar(&query, "query", "", "A single question; if omitted, starts an interactive session")
	cmd.Flags().StringVar(&engOpts.ollamaModel, "ollama-model", "", "Ollama model to use for answer generation (default: template-only, no network)")
	cmd.Flags().StringVar(&engOpts.ollamaHost, "ollama-host", "", "Ollama host, e.g. http://localhost:11434")
	addEmbedFlags(cmd, &engOpts)
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func runOneShotChat(ctx context.Context, cmd *cobra.Command, qa *qaworkflow.Handler, sid model.SessionID, query string) error {
	out := output.New(cmd.OutOrStdout())
	result, err := qa.Chat(ctx, sid, query)
	if err != nil {
		return err
	}
	out.Status("", result.Answer)
	for _, e := range result.Evidence {
		out.Statusf("", "  - [%s] %s", e.Type, evidenceText(e))
	}
	return nil
}

func evidenceText(e model.Evidence) string {
	if e.Type == model.EvidenceWeb {
		return e.Snippet
	}
	return e.ContentExcerpt
}

func runInteractiveChat(ctx context.Context, qa *qaworkflow.Handler, sid model.SessionID) error {
	m := newChatModel(ctx, qa, sid)
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

// chatModel is the bubbletea model for interactive terminal chat,
// styled with the internal/ui lime-green palette. Input is a
// bubbles/textinput field; a bubbles/spinner marks a question in flight.
type chatModel struct {
	ctx      context.Context
	qa       *qaworkflow.Handler
	sid      model.SessionID
	input    textinput.Model
	spinner  spinner.Model
	waiting  bool
	history  []string
	styles   ui.Styles
	quitting bool
	err      error
}

func newChatModel(ctx context.Context, qa *qaworkflow.Handler, sid model.SessionID) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "ask a question about this policy..."
	ti.Focus()
	ti.CharLimit = 500

	s := spinner.New()
	s.Spinner = spinner.Dot

	return &chatModel{
		ctx:     ctx,
		qa:      qa,
		sid:     sid,
		input:   ti,
		spinner: s,
		styles:  ui.DefaultStyles(),
	}
}

func (m *chatModel) Init() tea.Cmd {
	return textinput.Blink
}

type chatAnswerMsg struct {
	result qaworkflow.ChatResult
	err    error
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting || strings.TrimSpace(m.input.Value()) == "" {
				return m, nil
			}
			query := m.input.Value()
			m.history = append(m.history, m.styles.Active.Render("you: ")+query)
			m.input.Reset()
			m.waiting = true
			return m, tea.Batch(m.ask(query), m.spinner.Tick)
		}
	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case chatAnswerMsg:
		m.waiting = false
		if msg.err != nil {
			m.history = append(m.history, m.styles.Error.Render("error: ")+msg.err.Error())
		} else {
			m.history = append(m.history, m.styles.Success.Render("policyqa: ")+msg.result.Answer)
			for _, e := range msg.result.Evidence {
				m.history = append(m.history, m.styles.Dim.Render(fmt.Sprintf("  [%s] %s", e.Type, evidenceText(e))))
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) ask(query string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.qa.Chat(m.ctx, m.sid, query)
		return chatAnswerMsg{result: result, err: err}
	}
}

func (m *chatModel) View() string {
	if m.quitting {
		return "bye.\n"
	}
	var b strings.Builder
	b.WriteString(m.styles.Header.Render("policyqa chat"))
	b.WriteString("  (esc to quit)\n\n")
	for _, line := range m.history {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.waiting {
		b.WriteString(m.spinner.View())
		b.WriteString(" thinking...\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}
