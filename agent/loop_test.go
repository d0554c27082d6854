package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGen returns queued results and records the feedback it was given.
type scriptedGen struct {
	results   []error
	feedbacks []string
	inputs    []string
}

func (g *scriptedGen) Name() string { return "test:gen" }

func (g *scriptedGen) Generate(_ context.Context, in string, feedback string) (string, error) {
	g.inputs = append(g.inputs, in)
	g.feedbacks = append(g.feedbacks, feedback)
	n := len(g.feedbacks)
	if n <= len(g.results) && g.results[n-1] != nil {
		return "", g.results[n-1]
	}
	return in + "#" + string(rune('0'+n)), nil
}

func TestRun_HeadlessAcceptsFirstResponse(t *testing.T) {
	g := &scriptedGen{}
	resp, err := Run[string, string](context.Background(), g, "brief", Hooks[string]{})
	require.NoError(t, err)
	assert.Equal(t, "brief#1", resp)
	assert.Equal(t, []string{""}, g.feedbacks)
}

func TestRun_FeedbackReentersGenerating(t *testing.T) {
	g := &scriptedGen{}
	var seen []string
	decisions := []Decision{Revise("shorter please"), Revise("   "), Proceed()}
	hooks := Hooks[string]{
		Interact: func(_ context.Context, resp string) (Decision, error) {
			seen = append(seen, resp)
			d := decisions[0]
			decisions = decisions[1:]
			return d, nil
		},
	}

	resp, err := Run[string, string](context.Background(), g, "brief", hooks)
	require.NoError(t, err)
	assert.Equal(t, "brief#3", resp)
	assert.Equal(t, []string{"brief#1", "brief#2", "brief#3"}, seen)
	assert.Equal(t, []string{"", "shorter please", DefaultFeedback}, g.feedbacks)
}

func TestRun_RetryKeepsContext(t *testing.T) {
	boom := errors.New("boom")
	g := &scriptedGen{results: []error{nil, boom, boom}}
	retries := 0
	decided := false
	hooks := Hooks[string]{
		Interact: func(_ context.Context, resp string) (Decision, error) {
			if !decided {
				decided = true
				return Revise("again"), nil
			}
			return Proceed(), nil
		},
		OnRetry: func(_ context.Context, err error) bool {
			assert.ErrorIs(t, err, boom)
			retries++
			return true
		},
	}

	resp, err := Run[string, string](context.Background(), g, "in", hooks)
	require.NoError(t, err)
	assert.Equal(t, 2, retries)
	assert.Equal(t, "in#4", resp)
	// The retried attempts reuse the pending feedback.
	assert.Equal(t, []string{"", "again", "again", "again"}, g.feedbacks)
}

func TestRun_ErrorSurfacesWithoutOrRejectedRetry(t *testing.T) {
	boom := errors.New("boom")

	g := &scriptedGen{results: []error{boom}}
	_, err := Run[string, string](context.Background(), g, "in", Hooks[string]{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, g.feedbacks, 1)

	g = &scriptedGen{results: []error{boom}}
	calls := 0
	_, err = Run[string, string](context.Background(), g, "in", Hooks[string]{
		OnRetry: func(context.Context, error) bool { calls++; return false },
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRun_CancelledContextSkipsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &scriptedGen{results: []error{context.Canceled}}
	_, err := Run[string, string](ctx, g, "in", Hooks[string]{
		OnRetry: func(context.Context, error) bool {
			t.Fatal("OnRetry must not run after cancellation")
			return true
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_UnknownActionAndInteractError(t *testing.T) {
	g := &scriptedGen{}
	_, err := Run[string, string](context.Background(), g, "in", Hooks[string]{
		Interact: func(context.Context, string) (Decision, error) { return Decision{Action: "maybe"}, nil },
	})
	assert.ErrorContains(t, err, "unknown action")

	stop := errors.New("user quit")
	_, err = Run[string, string](context.Background(), g, "in", Hooks[string]{
		Interact: func(context.Context, string) (Decision, error) { return Decision{}, stop },
	})
	assert.ErrorIs(t, err, stop)
}

func TestRun_OnThinkingFiresPerAttempt(t *testing.T) {
	g := &scriptedGen{results: []error{errors.New("x")}}
	var names []string
	_, err := Run[string, string](context.Background(), g, "in", Hooks[string]{
		OnRetry:    func(context.Context, error) bool { return true },
		OnThinking: func(name string) { names = append(names, name) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"test:gen", "test:gen"}, names)
}
