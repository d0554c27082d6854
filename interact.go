package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/evolution"
	"github.com/danmt/hub-spoke-cm-sub000/orchestrator"
)

var errInputClosed = errors.New("input closed")

type theme struct {
	title lipgloss.Style
	label lipgloss.Style
	body  lipgloss.Style
	muted lipgloss.Style
	warn  lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		body: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		warn:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
	}
}

// terminal renders agent output and reads review decisions line by line.
type terminal struct {
	in    *bufio.Reader
	out   io.Writer
	theme theme
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out, theme: defaultTheme()}
}

func (t *terminal) readLine(prompt string) (string, error) {
	fmt.Fprint(t.out, t.theme.label.Render(prompt))
	line, err := t.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", errInputClosed
		}
	}
	return strings.TrimSpace(line), nil
}

func (t *terminal) show(title, body string) {
	fmt.Fprintln(t.out, t.theme.title.Render(title))
	fmt.Fprintln(t.out, t.theme.body.Render(strings.TrimSpace(body)))
}

// decide shows body and asks for a decision. An empty line accepts.
func (t *terminal) decide(title, body string) (agent.Decision, error) {
	t.show(title, body)
	line, err := t.readLine("Enter to accept, or type feedback: ")
	if err != nil {
		return agent.Decision{}, err
	}
	if line == "" {
		return agent.Proceed(), nil
	}
	return agent.Revise(line), nil
}

// callbacks builds the orchestrator hooks. Review callbacks are left nil
// when interactive is false so the run is headless.
func (t *terminal) callbacks(interactive bool, retries int, logger *slog.Logger) orchestrator.Callbacks {
	cb := orchestrator.Callbacks{
		OnRetry:    retryBudget(retries, logger),
		OnThinking: func(name string) { fmt.Fprintln(t.out, t.theme.muted.Render(name+" thinking...")) },
	}
	if !interactive {
		return cb
	}
	cb.OnArchitect = func(_ context.Context, r agent.ArchitectResponse) (agent.Decision, error) {
		return t.decide("Brief", formatBrief(r))
	}
	cb.OnAssembler = func(_ context.Context, r agent.AssemblerResponse) (agent.Decision, error) {
		return t.decide("Blueprint", formatBlueprint(r.Blueprint))
	}
	cb.OnWriter = func(_ context.Context, r agent.WriterResponse) (agent.Decision, error) {
		return t.decide("Draft", r.Content)
	}
	cb.OnPersona = func(_ context.Context, r agent.PersonaResponse) (agent.Decision, error) {
		return t.decide("Styled", r.Text)
	}
	return cb
}

// retryBudget allows each agent up to n retries over the whole run.
func retryBudget(n int, logger *slog.Logger) func(context.Context, string, error) bool {
	var mu sync.Mutex
	used := make(map[string]int)
	return func(_ context.Context, name string, err error) bool {
		mu.Lock()
		defer mu.Unlock()
		if used[name] >= n {
			logger.Error("generation failed, no retries left", "agent", name, "error", err)
			return false
		}
		used[name]++
		logger.Warn("generation failed, retrying", "agent", name, "attempt", used[name], "of", n, "error", err)
		return true
	}
}

func formatBrief(r agent.ArchitectResponse) string {
	b := r.Brief
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic:     %s\n", b.Topic)
	fmt.Fprintf(&sb, "Goal:      %s\n", b.Goal)
	fmt.Fprintf(&sb, "Audience:  %s\n", b.Audience)
	fmt.Fprintf(&sb, "Language:  %s\n", b.Language)
	fmt.Fprintf(&sb, "Assembler: %s\n", b.AssemblerID)
	fmt.Fprintf(&sb, "Persona:   %s\n", b.PersonaID)
	fmt.Fprintf(&sb, "Writers:   %s", strings.Join(b.AllowedWriterIDs, ", "))
	if r.Reasoning != "" {
		fmt.Fprintf(&sb, "\n\n%s", r.Reasoning)
	}
	return sb.String()
}

func formatBlueprint(bp agent.Blueprint) string {
	var sb strings.Builder
	for i, c := range bp.Components {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s [%s] %s", i+1, c.Header, c.WriterID, c.Intent)
	}
	return sb.String()
}

func formatAnalysis(an evolution.Analysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conflict: %s\n", an.ConflictType)
	if an.ViolatedTruth != "" {
		fmt.Fprintf(&sb, "Violated truth: %s\n", an.ViolatedTruth)
	}
	if an.ViolatedMetadataField != "" {
		fmt.Fprintf(&sb, "Violated field: %s -> %s\n", an.ViolatedMetadataField, an.NewMetadataValue)
	}
	if len(an.ContradictoryTruths) > 0 {
		fmt.Fprintf(&sb, "Contradicts: %s\n", strings.Join(an.ContradictoryTruths, "; "))
	}
	if an.SuggestedForkName != "" {
		fmt.Fprintf(&sb, "Suggested fork: %s\n", an.SuggestedForkName)
	}
	for _, p := range an.Proposals {
		fmt.Fprintf(&sb, "- %s %q\n", p.Action, p.Text)
	}
	if an.ThoughtProcess != "" {
		fmt.Fprintf(&sb, "\n%s", an.ThoughtProcess)
	}
	return sb.String()
}
