package agent

import (
	"fmt"
	"strings"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
)

// DefaultFeedback replaces an empty corrective instruction.
const DefaultFeedback = "The previous answer was rejected. Produce a better version that follows every instruction."

const architectSystem = `You are the Architect of a content hub. You refine a rough baseline into a precise brief
and choose the agents that will build it. Only choose ids from the lists you are given.
Answer with tagged fields only, no extra commentary.`

// systemPrompt renders an artifact-backed system instruction: role header,
// authored instructions, then learned truths strongest first.
func systemPrompt(role string, meta *artifact.Meta, extra ...string) string {
	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString("\n")
	for _, e := range extra {
		if e != "" {
			sb.WriteString(e)
			sb.WriteString("\n")
		}
	}
	if c := strings.TrimSpace(meta.Content); c != "" {
		sb.WriteString("\nInstructions:\n")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	if len(meta.Truths) > 0 {
		sb.WriteString("\nLearned guidance (weight 0-1, higher is more certain):\n")
		for _, t := range artifact.SortedTruths(meta.Truths) {
			fmt.Fprintf(&sb, "- (%.2f) %s\n", t.Weight, t.Text)
		}
	}
	return sb.String()
}

func assemblerSystem(a *artifact.Assembler) string {
	return systemPrompt(
		fmt.Sprintf("You are the Assembler %q. You turn a brief into an ordered blueprint of sections, each handed to one writer.", a.ID),
		&a.Meta,
	)
}

func writerSystem(w *artifact.Writer) string {
	return systemPrompt(
		fmt.Sprintf("You are the Writer %q. You draft neutral, technically precise section content.", w.ID),
		&w.Meta,
	)
}

func personaSystem(p *artifact.Persona) string {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return systemPrompt(
		fmt.Sprintf("You are %s, a persona that rewrites text in its own voice without changing facts.", name),
		&p.Meta,
		labelled("Language", p.Language),
		labelled("Tone", p.Tone),
		labelled("Accent", p.Accent),
	)
}

func labelled(label, v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", label, v)
}

func writeBrief(sb *strings.Builder, b Brief) {
	fmt.Fprintf(sb, "- Topic: %s\n", b.Topic)
	fmt.Fprintf(sb, "- Goal: %s\n", b.Goal)
	fmt.Fprintf(sb, "- Audience: %s\n", b.Audience)
	fmt.Fprintf(sb, "- Language: %s\n", b.Language)
}

func writeProfiles(sb *strings.Builder, title string, ps []Profile) {
	fmt.Fprintf(sb, "%s:\n", title)
	if len(ps) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, p := range ps {
		fmt.Fprintf(sb, "  - %s: %s\n", p.ID, p.Description)
	}
}

func writeFeedback(sb *strings.Builder, feedback string) {
	if feedback == "" {
		return
	}
	sb.WriteString("\n[FEEDBACK]\n")
	sb.WriteString(feedback)
	sb.WriteString("\n[/FEEDBACK]\nRevise your previous answer so it addresses this feedback.\n")
}

// BuildArchitectPrompt renders the Architect request.
func BuildArchitectPrompt(in ArchitectInput, feedback string) string {
	var sb strings.Builder
	sb.WriteString("Refine this baseline into a final brief.\n\nBaseline:\n")
	writeBrief(&sb, in.Baseline)
	if in.Notes != "" {
		fmt.Fprintf(&sb, "- Notes: %s\n", in.Notes)
	}
	sb.WriteString("\n")
	writeProfiles(&sb, "Assemblers", in.Assemblers)
	writeProfiles(&sb, "Personas", in.Personas)
	writeProfiles(&sb, "Writers", in.Writers)
	sb.WriteString(`
Respond with:
[TOPIC]...[/TOPIC]
[GOAL]...[/GOAL]
[AUDIENCE]...[/AUDIENCE]
[LANGUAGE]...[/LANGUAGE]
[ASSEMBLER_ID]one assembler id[/ASSEMBLER_ID]
[PERSONA_ID]one persona id[/PERSONA_ID]
[WRITER_IDS]comma separated writer ids[/WRITER_IDS]
[REASONING]optional short rationale[/REASONING]
`)
	writeFeedback(&sb, feedback)
	return sb.String()
}

// BuildAssemblerPrompt renders the Assembler request.
func BuildAssemblerPrompt(in AssemblerInput, feedback string) string {
	var sb strings.Builder
	sb.WriteString("Design the section blueprint for this hub.\n\nBrief:\n")
	writeBrief(&sb, in.Brief)
	sb.WriteString("\n")
	writeProfiles(&sb, "Available writers", in.Writers)
	sb.WriteString(`
Emit one block per section, in reading order:
[COMPONENT]
[ID]short-kebab-id[/ID]
[HEADER]section title[/HEADER]
[INTENT]what the writer must cover[/INTENT]
[WRITER_ID]one of the available writer ids[/WRITER_ID]
[BRIDGE]what the reader already knows from earlier sections and how this one continues[/BRIDGE]
[/COMPONENT]
`)
	writeFeedback(&sb, feedback)
	return sb.String()
}

// BuildWriterPrompt renders the Writer request for one component.
func BuildWriterPrompt(in WriterInput, feedback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the section %q.\n\nHub brief:\n", in.Component.Header)
	writeBrief(&sb, in.Brief)
	fmt.Fprintf(&sb, "\nIntent: %s\n", in.Component.Intent)
	fmt.Fprintf(&sb, "Continuity: %s\n", in.Component.Bridge)
	switch {
	case in.IsFirst && in.IsLast:
		sb.WriteString("Position: this is the only section; open the topic and close it.\n")
	case in.IsFirst:
		sb.WriteString("Position: opening section; introduce the topic and set expectations.\n")
	case in.IsLast:
		sb.WriteString("Position: closing section; wrap up and leave the reader with next steps.\n")
	default:
		sb.WriteString("Position: body section; build on what came before without repeating it.\n")
	}
	sb.WriteString("\nDo not include the section header. Respond with [CONTENT]markdown body[/CONTENT].\n")
	writeFeedback(&sb, feedback)
	return sb.String()
}

// BuildPersonaPrompt renders the Persona rewrite request.
func BuildPersonaPrompt(in PersonaInput, feedback string) string {
	var sb strings.Builder
	purpose := in.Purpose
	if purpose == "" {
		purpose = "text"
	}
	fmt.Fprintf(&sb, "Rewrite the following %s in your voice. Keep every fact, code block and link.\n", purpose)
	if in.Brief.Topic != "" {
		fmt.Fprintf(&sb, "Hub topic: %s. Audience: %s.\n", in.Brief.Topic, in.Brief.Audience)
	}
	sb.WriteString("\n[SOURCE]\n")
	sb.WriteString(in.Text)
	sb.WriteString("\n[/SOURCE]\n\nRespond with [TEXT]rewritten text[/TEXT].\n")
	writeFeedback(&sb, feedback)
	return sb.String()
}
