// Package agent implements the generative agents and the interaction loop
// they share.
package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/llm"
)

// Options are shared by every agent constructor.
type Options struct {
	Model  string
	Logger *slog.Logger
}

// Agent holds what every role has in common: the completion client, a
// system instruction and a private conversation history.
type Agent struct {
	kind    Kind
	id      string
	llm     llm.Client
	model   string
	system  string
	history History
	logger  *slog.Logger
}

func newAgent(kind Kind, id string, client llm.Client, system string, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Agent{
		kind:   kind,
		id:     id,
		llm:    client,
		model:  opts.Model,
		system: system,
		logger: logger.With("agent", string(kind), "id", id),
	}
}

func (a *Agent) Kind() Kind { return a.kind }
func (a *Agent) ID() string { return a.id }

// Name is kind:id, used in errors and logs.
func (a *Agent) Name() string { return string(a.kind) + ":" + a.id }

// History exposes a copy of the conversation so far.
func (a *Agent) History() []llm.Message { return a.history.Messages() }

// complete performs exactly one completion call and records the exchange on
// success.
func (a *Agent) complete(ctx context.Context, prompt string) (string, error) {
	if a.llm == nil {
		return "", &CompletionError{Agent: a.Name(), Err: errors.New("no completion client configured")}
	}
	a.logger.Debug("completion request", "history", a.history.Len(), "prompt_bytes", len(prompt))
	out, err := a.llm.Execute(ctx, prompt, llm.Options{
		Model:             a.model,
		SystemInstruction: a.system,
		History:           a.history.Messages(),
	})
	if err != nil {
		a.logger.Debug("completion failed", "error", err)
		return "", &CompletionError{Agent: a.Name(), Err: err}
	}
	a.history.Append(prompt, out)
	return out, nil
}

// ArchitectID is the id of the built-in Architect.
const ArchitectID = "architect"

// Architect refines a baseline brief. It is built in and has no artifact.
type Architect struct {
	*Agent
}

func NewArchitect(client llm.Client, opts Options) *Architect {
	return &Architect{Agent: newAgent(KindArchitect, ArchitectID, client, architectSystem, opts)}
}

func (a *Architect) Generate(ctx context.Context, in ArchitectInput, feedback string) (ArchitectResponse, error) {
	raw, err := a.complete(ctx, BuildArchitectPrompt(in, feedback))
	if err != nil {
		return ArchitectResponse{}, err
	}
	return DecodeArchitect(a.Name(), raw)
}

func (a *Architect) Run(ctx context.Context, in ArchitectInput, hooks Hooks[ArchitectResponse]) (ArchitectResponse, error) {
	return Run[ArchitectInput, ArchitectResponse](ctx, a, in, hooks)
}

// Assembler turns a brief into a blueprint.
type Assembler struct {
	*Agent
	def *artifact.Assembler
}

func NewAssembler(def *artifact.Assembler, client llm.Client, opts Options) *Assembler {
	return &Assembler{
		Agent: newAgent(KindAssembler, def.ID, client, assemblerSystem(def), opts),
		def:   def,
	}
}

func (a *Assembler) Artifact() *artifact.Assembler { return a.def }

func (a *Assembler) Generate(ctx context.Context, in AssemblerInput, feedback string) (AssemblerResponse, error) {
	raw, err := a.complete(ctx, BuildAssemblerPrompt(in, feedback))
	if err != nil {
		return AssemblerResponse{}, err
	}
	ids := make([]string, 0, len(in.Writers))
	for _, w := range in.Writers {
		ids = append(ids, w.ID)
	}
	return DecodeAssembler(a.Name(), raw, ids)
}

func (a *Assembler) Run(ctx context.Context, in AssemblerInput, hooks Hooks[AssemblerResponse]) (AssemblerResponse, error) {
	return Run[AssemblerInput, AssemblerResponse](ctx, a, in, hooks)
}

// Writer drafts neutral content for one component.
type Writer struct {
	*Agent
	def *artifact.Writer
}

func NewWriter(def *artifact.Writer, client llm.Client, opts Options) *Writer {
	return &Writer{
		Agent: newAgent(KindWriter, def.ID, client, writerSystem(def), opts),
		def:   def,
	}
}

func (w *Writer) Artifact() *artifact.Writer { return w.def }

func (w *Writer) Generate(ctx context.Context, in WriterInput, feedback string) (WriterResponse, error) {
	raw, err := w.complete(ctx, BuildWriterPrompt(in, feedback))
	if err != nil {
		return WriterResponse{}, err
	}
	return DecodeWriter(w.Name(), raw)
}

func (w *Writer) Run(ctx context.Context, in WriterInput, hooks Hooks[WriterResponse]) (WriterResponse, error) {
	return Run[WriterInput, WriterResponse](ctx, w, in, hooks)
}

// Persona rewrites text in its configured voice.
type Persona struct {
	*Agent
	def *artifact.Persona
}

func NewPersona(def *artifact.Persona, client llm.Client, opts Options) *Persona {
	return &Persona{
		Agent: newAgent(KindPersona, def.ID, client, personaSystem(def), opts),
		def:   def,
	}
}

func (p *Persona) Artifact() *artifact.Persona { return p.def }

func (p *Persona) Generate(ctx context.Context, in PersonaInput, feedback string) (PersonaResponse, error) {
	raw, err := p.complete(ctx, BuildPersonaPrompt(in, feedback))
	if err != nil {
		return PersonaResponse{}, err
	}
	return DecodePersona(p.Name(), raw)
}

func (p *Persona) Run(ctx context.Context, in PersonaInput, hooks Hooks[PersonaResponse]) (PersonaResponse, error) {
	return Run[PersonaInput, PersonaResponse](ctx, p, in, hooks)
}
