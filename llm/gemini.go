package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini is a thin wrapper around the official genai client. System
// instruction and history map onto the native request fields.
type Gemini struct {
	cli   *genai.Client
	model string
}

func NewGemini(ctx context.Context, s Settings) (*Gemini, error) {
	if s.APIKey == "" {
		return nil, errors.New("gemini api key missing; provide llm.api_key or llm.api_key_env")
	}
	model := s.Model
	if model == "" {
		model = defaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{cli: cli, model: model}, nil
}

func (g *Gemini) Execute(ctx context.Context, prompt string, opts Options) (string, error) {
	contents := make([]*genai.Content, 0, len(opts.History)+1)
	for _, h := range opts.History {
		contents = append(contents, textContent(string(h.Role), h.Text))
	}
	contents = append(contents, textContent(string(RoleUser), prompt))

	var cfg *genai.GenerateContentConfig
	if opts.SystemInstruction != "" {
		// System instruction uses the user role.
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: textContent(string(RoleUser), opts.SystemInstruction),
		}
	}

	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}
	resp, err := g.cli.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{
		Role:  role,
		Parts: []*genai.Part{{Text: text}},
	}
}
