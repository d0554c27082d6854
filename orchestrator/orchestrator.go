// Package orchestrator sequences agents into the hub creation and section
// fill actions and records every review decision in the feedback log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/metrics"
	"github.com/danmt/hub-spoke-cm-sub000/registry"
)

// Phase names a step of an action, used in errors and logs.
type Phase string

const (
	PhaseArchitect Phase = "architect"
	PhaseAssembler Phase = "assembler"
	PhaseIntro     Phase = "intro"
	PhaseWrite     Phase = "write"
	PhaseRephrase  Phase = "rephrase"
)

// ConfigError is a fatal configuration problem found before or at the start
// of a phase. It is never retried.
type ConfigError struct {
	Phase   Phase
	AgentID string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s phase: %s %q", e.Phase, e.Reason, e.AgentID)
}

// PhaseError carries the phase and agent of a failed agent run. The agent
// error stays reachable through errors.As.
type PhaseError struct {
	Phase   Phase
	AgentID string
	Section string
	Err     error
}

func (e *PhaseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s phase (section %s, %s): %v", e.Phase, e.Section, e.AgentID, e.Err)
	}
	return fmt.Sprintf("%s phase (%s): %v", e.Phase, e.AgentID, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Callbacks are supplied by the host. A nil review callback runs that agent
// headless and nothing is logged for it.
type Callbacks struct {
	OnArchitect func(ctx context.Context, r agent.ArchitectResponse) (agent.Decision, error)
	OnAssembler func(ctx context.Context, r agent.AssemblerResponse) (agent.Decision, error)
	OnPersona   func(ctx context.Context, r agent.PersonaResponse) (agent.Decision, error)
	OnWriter    func(ctx context.Context, r agent.WriterResponse) (agent.Decision, error)
	// OnRetry decides whether a failed generation is attempted again.
	OnRetry    func(ctx context.Context, agentName string, err error) bool
	OnThinking func(agentName string)
}

type Deps struct {
	Registry *registry.Registry
	Feedback feedback.Store
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	// NewThreadID defaults to a random UUID.
	NewThreadID func() string
	Now         func() time.Time
}

// Actions runs the orchestration actions over one registry. Agents keep
// their history, so an Actions value serves a single pipeline run.
type Actions struct {
	reg      *registry.Registry
	feedback feedback.Store
	logger   *slog.Logger
	metrics  *metrics.Recorder
	threadID func() string
	now      func() time.Time
}

func New(d Deps) (*Actions, error) {
	if d.Registry == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	if d.Feedback == nil {
		return nil, errors.New("orchestrator: feedback store is required")
	}
	a := &Actions{
		reg:      d.Registry,
		feedback: d.Feedback,
		logger:   d.Logger,
		metrics:  d.Metrics,
		threadID: d.NewThreadID,
		now:      d.Now,
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.threadID == nil {
		a.threadID = uuid.NewString
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

type phaseAgent[I, R any] interface {
	agent.Generator[I, R]
	Kind() agent.Kind
	ID() string
}

// runPhase runs one agent through the interaction loop with a fresh thread
// id. Each review decision is appended to the agent's feedback log; turn
// starts at 0 and grows by one per feedback round.
func runPhase[I, R any](
	ctx context.Context,
	a *Actions,
	phase Phase,
	section string,
	g phaseAgent[I, R],
	in I,
	review func(context.Context, R) (agent.Decision, error),
	cb Callbacks,
) (R, error) {
	name := g.Name()
	key := feedback.Key{Type: string(g.Kind()), ID: g.ID()}
	thread := a.threadID()
	turn := 0
	log := a.logger.With("phase", string(phase), "agent", name, "thread", thread)
	if section != "" {
		log = log.With("section", section)
	}

	hooks := agent.Hooks[R]{OnThinking: cb.OnThinking}
	if review != nil {
		hooks.Interact = func(ctx context.Context, r R) (agent.Decision, error) {
			d, err := review(ctx, r)
			if err != nil {
				return d, err
			}
			e := feedback.Entry{
				Timestamp: a.now(),
				Source:    feedback.SourceAction,
				ThreadID:  thread,
				Turn:      turn,
			}
			switch d.Action {
			case agent.ActionProceed:
				e.Outcome = feedback.OutcomeAccepted
			case agent.ActionFeedback:
				e.Outcome = feedback.OutcomeFeedback
				e.Text = strings.TrimSpace(d.Feedback)
			default:
				return d, nil
			}
			if err := a.feedback.Append(ctx, key, e); err != nil {
				return d, fmt.Errorf("record feedback: %w", err)
			}
			a.metrics.Review(name, string(e.Outcome))
			log.Debug("review recorded", "outcome", e.Outcome, "turn", turn)
			if d.Action == agent.ActionFeedback {
				turn++
			}
			return d, nil
		}
	}
	if cb.OnRetry != nil {
		hooks.OnRetry = func(ctx context.Context, err error) bool {
			log.Warn("generation failed", "error", err)
			if !cb.OnRetry(ctx, name, err) {
				return false
			}
			a.metrics.Retry(name)
			return true
		}
	}

	log.Info("phase started")
	resp, err := agent.Run[I, R](ctx, g, in, hooks)
	if err != nil {
		var zero R
		return zero, &PhaseError{Phase: phase, AgentID: name, Section: section, Err: err}
	}
	log.Info("phase finished", "feedback_rounds", turn)
	return resp, nil
}
