package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/llm"
)

// ConflictType classifies how feedback relates to what an agent already
// knows.
type ConflictType string

const (
	ConflictNone ConflictType = "none"
	ConflictSoft ConflictType = "soft"
	ConflictHard ConflictType = "hard"
)

// ProposalAction is the mutation a proposal asks for.
type ProposalAction string

const (
	ActionAdd        ProposalAction = "add"
	ActionStrengthen ProposalAction = "strengthen"
	ActionWeaken     ProposalAction = "weaken"
)

type Proposal struct {
	Text      string         `json:"text"`
	Action    ProposalAction `json:"action"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// Analysis is the structured verdict of one analysis call.
type Analysis struct {
	ThoughtProcess        string       `json:"thoughtProcess"`
	ConflictType          ConflictType `json:"conflictType"`
	ForkRecommended       bool         `json:"forkRecommended"`
	ViolatedTruth         string       `json:"violatedTruth,omitempty"`
	ViolatedMetadataField string       `json:"violatedMetadataField,omitempty"`
	NewMetadataValue      string       `json:"newMetadataValue,omitempty"`
	SuggestedForkName     string       `json:"suggestedForkName,omitempty"`
	ContradictoryTruths   []string     `json:"contradictoryTruths"`
	Proposals             []Proposal   `json:"proposals"`
}

// Analyzer produces an Analysis for an artifact and its feedback buffer.
type Analyzer interface {
	Analyze(ctx context.Context, a artifact.Artifact, entries []feedback.Entry) (Analysis, error)
}

// Summarizer rewrites an artifact's description from its behaviour and
// truths.
type Summarizer interface {
	Summarize(ctx context.Context, a artifact.Artifact) (string, error)
}

const analystSystem = `You analyse human feedback given to a content agent and decide how its learned truths should change.
Classify conflictType as "hard" when feedback negates an existing truth or asks a persona to change its fixed
name, language, tone or accent. Use "soft" for additive or refining feedback and "none" when nothing should change.
Answer with a single JSON object and nothing else.`

// LLMAnalyzer asks the completion boundary for the analysis as JSON.
type LLMAnalyzer struct {
	Client llm.Client
	Model  string
}

func (z *LLMAnalyzer) Analyze(ctx context.Context, a artifact.Artifact, entries []feedback.Entry) (Analysis, error) {
	out, err := z.Client.Execute(ctx, buildAnalysisPrompt(a, entries), llm.Options{
		Model:             z.Model,
		SystemInstruction: analystSystem,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("analysis call: %w", err)
	}
	return DecodeAnalysis(out)
}

// DecodeAnalysis parses a JSON analysis, tolerating a markdown code fence
// around it.
func DecodeAnalysis(raw string) (Analysis, error) {
	var an Analysis
	body := stripFence(raw)
	if err := json.Unmarshal([]byte(body), &an); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	switch an.ConflictType {
	case ConflictNone, ConflictSoft, ConflictHard:
	case "":
		an.ConflictType = ConflictNone
	default:
		return Analysis{}, fmt.Errorf("decode analysis: unknown conflictType %q", an.ConflictType)
	}
	for i, p := range an.Proposals {
		switch p.Action {
		case ActionAdd, ActionStrengthen, ActionWeaken:
		default:
			return Analysis{}, fmt.Errorf("decode analysis: proposal %d has unknown action %q", i+1, p.Action)
		}
	}
	return an, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func writeIdentity(sb *strings.Builder, a artifact.Artifact) {
	m := a.Base()
	fmt.Fprintf(sb, "Agent: %s\n", artifact.KeyOf(a))
	if p, ok := a.(*artifact.Persona); ok {
		fmt.Fprintf(sb, "Name: %s\nLanguage: %s\nTone: %s\nAccent: %s\n", p.Name, p.Language, p.Tone, p.Accent)
	}
	fmt.Fprintf(sb, "\nBehaviour:\n%s\n", strings.TrimSpace(m.Content))
	sb.WriteString("\nTruths:\n")
	if len(m.Truths) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, t := range artifact.SortedTruths(m.Truths) {
		fmt.Fprintf(sb, "- %q weight %.2f\n", t.Text, t.Weight)
	}
}

func buildAnalysisPrompt(a artifact.Artifact, entries []feedback.Entry) string {
	var sb strings.Builder
	writeIdentity(&sb, a)
	sb.WriteString("\nFeedback log (oldest first):\n")
	for _, e := range entries {
		text := e.Text
		if text == "" {
			text = "(no comment)"
		}
		fmt.Fprintf(&sb, "- %s via %s, turn %d: %s\n", e.Outcome, e.Source, e.Turn, text)
	}
	sb.WriteString(`
Return JSON with these keys:
{"thoughtProcess": string, "conflictType": "none"|"soft"|"hard", "forkRecommended": bool,
 "violatedTruth": string, "violatedMetadataField": "name"|"language"|"tone"|"accent"|"",
 "newMetadataValue": string, "suggestedForkName": string, "contradictoryTruths": [string],
 "proposals": [{"text": string, "action": "add"|"strengthen"|"weaken", "reasoning": string}]}
Refer to existing truths by their exact text.
`)
	return sb.String()
}

const summarySystem = `You write the one or two sentence description of a content agent, based on its behaviour and learned truths.
Answer with the description only.`

// LLMSummarizer regenerates descriptions through the completion boundary.
type LLMSummarizer struct {
	Client llm.Client
	Model  string
}

func (z *LLMSummarizer) Summarize(ctx context.Context, a artifact.Artifact) (string, error) {
	var sb strings.Builder
	writeIdentity(&sb, a)
	fmt.Fprintf(&sb, "\nCurrent description: %s\n", a.Base().Description)
	out, err := z.Client.Execute(ctx, sb.String(), llm.Options{
		Model:             z.Model,
		SystemInstruction: summarySystem,
	})
	if err != nil {
		return "", fmt.Errorf("summary call: %w", err)
	}
	return strings.TrimSpace(out), nil
}
