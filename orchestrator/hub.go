package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/artifact"
)

// HubRequest is the user's rough starting point.
type HubRequest struct {
	Baseline agent.Brief
	Notes    string
}

type HubResult struct {
	Brief     agent.Brief
	Blueprint agent.Blueprint
	Intro     string
}

// CreateHub runs Architect, Assembler and Persona in sequence.
func (a *Actions) CreateHub(ctx context.Context, req HubRequest, cb Callbacks) (*HubResult, error) {
	arch, err := runPhase(ctx, a, PhaseArchitect, "", a.reg.Architect(), agent.ArchitectInput{
		Baseline:   req.Baseline,
		Notes:      req.Notes,
		Assemblers: a.reg.Profiles(artifact.TypeAssembler),
		Personas:   a.reg.Profiles(artifact.TypePersona),
		Writers:    a.reg.Profiles(artifact.TypeWriter),
	}, cb.OnArchitect, cb)
	if err != nil {
		return nil, err
	}
	brief := arch.Brief

	asm, ok := a.reg.Assembler(brief.AssemblerID)
	if !ok {
		return nil, &ConfigError{Phase: PhaseAssembler, AgentID: brief.AssemblerID, Reason: "unknown assembler"}
	}
	persona, ok := a.reg.Persona(brief.PersonaID)
	if !ok {
		return nil, &ConfigError{Phase: PhaseIntro, AgentID: brief.PersonaID, Reason: "unknown persona"}
	}
	writers := a.reg.Writers(brief.AllowedWriterIDs)
	if len(writers) == 0 {
		return nil, &ConfigError{
			Phase:   PhaseAssembler,
			AgentID: asm.ID(),
			Reason:  fmt.Sprintf("no known writers among allowedWriterIds [%s] for assembler", strings.Join(brief.AllowedWriterIDs, ", ")),
		}
	}
	profiles := make([]agent.Profile, 0, len(writers))
	for _, w := range writers {
		profiles = append(profiles, agent.Profile{ID: w.ID(), Description: w.Artifact().Description})
	}

	plan, err := runPhase(ctx, a, PhaseAssembler, "", asm, agent.AssemblerInput{
		Brief:   brief,
		Writers: profiles,
	}, cb.OnAssembler, cb)
	if err != nil {
		return nil, err
	}

	intro, err := runPhase(ctx, a, PhaseIntro, "", persona, agent.PersonaInput{
		Text:    Blurb(brief, plan.Blueprint),
		Purpose: "hub introduction",
		Brief:   brief,
	}, cb.OnPersona, cb)
	if err != nil {
		return nil, err
	}

	a.logger.Info("hub planned", "topic", brief.Topic, "sections", len(plan.Blueprint.Components))
	return &HubResult{Brief: brief, Blueprint: plan.Blueprint, Intro: intro.Text}, nil
}

// Blurb is the neutral hub description handed to the persona.
func Blurb(b agent.Brief, bp agent.Blueprint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s, written for %s.", b.Topic, b.Audience)
	if g := strings.TrimSpace(b.Goal); g != "" {
		fmt.Fprintf(&sb, " Goal: %s.", strings.TrimSuffix(g, "."))
	}
	headers := make([]string, 0, len(bp.Components))
	for _, c := range bp.Components {
		headers = append(headers, c.Header)
	}
	switch len(headers) {
	case 0:
	case 1:
		fmt.Fprintf(&sb, " It covers %s.", headers[0])
	default:
		fmt.Fprintf(&sb, " It covers %s and %s.", strings.Join(headers[:len(headers)-1], ", "), headers[len(headers)-1])
	}
	return sb.String()
}
