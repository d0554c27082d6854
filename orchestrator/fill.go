package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
)

// Document is the partially written content the fill action works on.
type Document interface {
	Section(componentID string) (string, bool)
	SetSection(componentID, body string)
}

type FillRequest struct {
	Brief     agent.Brief
	Blueprint agent.Blueprint
	Doc       Document
	// IsPending reports whether a section body still needs generation.
	IsPending func(body string) bool
	// Persist is called after every completed section.
	Persist func(ctx context.Context) error
}

type FillResult struct {
	Filled []string
}

// FillSections writes every pending section in blueprint order: the
// component's writer drafts it, then the brief's persona rewrites it. A
// section is complete once persisted; an error leaves earlier sections in
// place and later ones pending.
func (a *Actions) FillSections(ctx context.Context, req FillRequest, cb Callbacks) (*FillResult, error) {
	if req.Doc == nil || req.IsPending == nil {
		return nil, errors.New("fill: document and pending predicate are required")
	}
	persona, ok := a.reg.Persona(req.Brief.PersonaID)
	if !ok {
		return nil, &ConfigError{Phase: PhaseRephrase, AgentID: req.Brief.PersonaID, Reason: "unknown persona"}
	}

	res := &FillResult{}
	comps := req.Blueprint.Components
	for i, c := range comps {
		body, _ := req.Doc.Section(c.ID)
		if !req.IsPending(body) {
			continue
		}
		writer, ok := a.reg.Writer(c.WriterID)
		if !ok {
			return res, &ConfigError{Phase: PhaseWrite, AgentID: c.WriterID, Reason: fmt.Sprintf("section %s uses unknown writer", c.ID)}
		}

		draft, err := runPhase(ctx, a, PhaseWrite, c.ID, writer, agent.WriterInput{
			Brief:     req.Brief,
			Component: c,
			IsFirst:   i == 0,
			IsLast:    i == len(comps)-1,
		}, cb.OnWriter, cb)
		if err != nil {
			return res, err
		}
		styled, err := runPhase(ctx, a, PhaseRephrase, c.ID, persona, agent.PersonaInput{
			Text:    draft.Content,
			Purpose: fmt.Sprintf("section %q", c.Header),
			Brief:   req.Brief,
		}, cb.OnPersona, cb)
		if err != nil {
			return res, err
		}

		req.Doc.SetSection(c.ID, styled.Text)
		if req.Persist != nil {
			if err := req.Persist(ctx); err != nil {
				return res, fmt.Errorf("fill: persist after section %s: %w", c.ID, err)
			}
		}
		res.Filled = append(res.Filled, c.ID)
		a.metrics.SectionFilled()
		a.logger.Info("section filled", "section", c.ID, "writer", c.WriterID, "position", fmt.Sprintf("%d/%d", i+1, len(comps)))
	}
	return res, nil
}
