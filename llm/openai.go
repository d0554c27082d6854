package llm

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Client using the official openai-go SDK (chat completions).
type OpenAI struct {
	Model string
	Opts  []option.RequestOption
}

func NewOpenAI(s Settings) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key or llm.api_key_env")
	}
	if s.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &OpenAI{Model: s.Model, Opts: opts}, nil
}

func (o *OpenAI) Execute(ctx context.Context, prompt string, opts Options) (string, error) {
	client := openai.NewClient(o.Opts...)

	var msgs []openai.ChatCompletionMessageParamUnion
	if opts.SystemInstruction != "" {
		msgs = append(msgs, openai.SystemMessage(opts.SystemInstruction))
	}
	for _, h := range opts.History {
		switch h.Role {
		case RoleModel:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(h.Text))
		default:
			msgs = append(msgs, openai.UserMessage(h.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	model := o.Model
	if opts.Model != "" {
		model = opts.Model
	}
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
