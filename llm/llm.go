// Package llm is the text-completion boundary used by every agent.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role marks who authored a history message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of a conversation history.
type Message struct {
	Role Role
	Text string
}

// Options accompany a single completion call.
type Options struct {
	Model             string
	SystemInstruction string
	History           []Message
}

// Client abstracts the completion provider so it can be swapped or mocked.
type Client interface {
	Execute(ctx context.Context, prompt string, opts Options) (string, error)
}

// Settings configure a concrete provider.
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the client for settings.Provider.
func New(ctx context.Context, s Settings) (Client, error) {
	switch strings.ToLower(s.Provider) {
	case "openai":
		return NewOpenAI(s)
	case "deepseek":
		// OpenAI-compatible endpoint, base_url is mandatory.
		if s.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return NewOpenAI(s)
	case "gemini":
		return NewGemini(ctx, s)
	case "":
		return nil, fmt.Errorf("llm provider missing; set llm.provider in config")
	default:
		return nil, fmt.Errorf("llm provider %s not supported", s.Provider)
	}
}
