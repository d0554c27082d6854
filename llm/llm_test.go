package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProviderSelection(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Settings{})
	assert.ErrorContains(t, err, "provider missing")

	_, err = New(ctx, Settings{Provider: "claude-local"})
	assert.ErrorContains(t, err, "not supported")

	_, err = New(ctx, Settings{Provider: "deepseek", APIKey: "k"})
	assert.ErrorContains(t, err, "requires base_url")

	c, err := New(ctx, Settings{Provider: "OpenAI", APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)
}

func TestMock_ScriptThenRespond(t *testing.T) {
	boom := errors.New("boom")
	m := (&Mock{}).Push("one").Fail(boom)
	m.Respond = func(prompt string, _ Options) (string, error) { return "echo " + prompt, nil }

	hist := []Message{{Role: RoleUser, Text: "q"}}
	out, err := m.Execute(context.Background(), "a", Options{History: hist})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = m.Execute(context.Background(), "b", Options{})
	assert.ErrorIs(t, err, boom)

	out, err = m.Execute(context.Background(), "c", Options{})
	require.NoError(t, err)
	assert.Equal(t, "echo c", out)

	// Recorded history is a copy.
	hist[0].Text = "changed"
	calls := m.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "q", calls[0].Options.History[0].Text)
}

func TestMock_EmptyScript(t *testing.T) {
	_, err := (&Mock{}).Execute(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, ErrNoScript)
}
