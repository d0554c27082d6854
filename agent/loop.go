package agent

import (
	"context"
	"fmt"
	"strings"
)

// Action is the outcome of a human review.
type Action string

const (
	ActionProceed  Action = "proceed"
	ActionFeedback Action = "feedback"
)

// Decision is what an Interact callback resolves to.
type Decision struct {
	Action   Action
	Feedback string
}

func Proceed() Decision { return Decision{Action: ActionProceed} }

func Revise(feedback string) Decision {
	return Decision{Action: ActionFeedback, Feedback: feedback}
}

// Generator is one role's generate step: one prompt, one completion, one
// typed decode.
type Generator[I, R any] interface {
	Name() string
	Generate(ctx context.Context, in I, feedback string) (R, error)
}

// Hooks are the optional host callbacks of the loop. A nil Interact means
// headless mode: the first successful response is accepted. A nil OnRetry
// means failures surface immediately.
type Hooks[R any] struct {
	Interact   func(ctx context.Context, resp R) (Decision, error)
	OnRetry    func(ctx context.Context, err error) bool
	OnThinking func(agent string)
}

// Run drives the generate → review → retry cycle until the response is
// accepted or an error is not retried. The retry count is unbounded; the
// OnRetry callback alone decides when to stop.
func Run[I, R any](ctx context.Context, g Generator[I, R], in I, hooks Hooks[R]) (R, error) {
	var zero R
	feedback := ""
	for {
		if hooks.OnThinking != nil {
			hooks.OnThinking(g.Name())
		}
		resp, err := g.Generate(ctx, in, feedback)
		if err != nil {
			if ctx.Err() != nil {
				return zero, err
			}
			if hooks.OnRetry != nil && hooks.OnRetry(ctx, err) {
				continue
			}
			return zero, err
		}

		if hooks.Interact == nil {
			return resp, nil
		}
		d, err := hooks.Interact(ctx, resp)
		if err != nil {
			return zero, fmt.Errorf("%s: interaction: %w", g.Name(), err)
		}
		switch d.Action {
		case ActionProceed:
			return resp, nil
		case ActionFeedback:
			feedback = strings.TrimSpace(d.Feedback)
			if feedback == "" {
				feedback = DefaultFeedback
			}
		default:
			return zero, fmt.Errorf("%s: interaction returned unknown action %q", g.Name(), d.Action)
		}
	}
}
