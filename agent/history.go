package agent

import "github.com/danmt/hub-spoke-cm-sub000/llm"

// History is the private, append-only conversation log of one agent
// instance. It is never shared with other agents.
type History struct {
	msgs []llm.Message
}

// Append records one prompt/reply exchange.
func (h *History) Append(prompt, reply string) {
	h.msgs = append(h.msgs,
		llm.Message{Role: llm.RoleUser, Text: prompt},
		llm.Message{Role: llm.RoleModel, Text: reply},
	)
}

// Messages returns a copy of the log in order.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *History) Len() int { return len(h.msgs) }
