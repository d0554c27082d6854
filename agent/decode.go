package agent

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	tagMu    sync.Mutex
	tagCache = map[string]*regexp.Regexp{}
)

func tagRegexp(tag string) *regexp.Regexp {
	tagMu.Lock()
	defer tagMu.Unlock()
	re, ok := tagCache[tag]
	if !ok {
		q := regexp.QuoteMeta(tag)
		re = regexp.MustCompile(`(?s)\[` + q + `\](.*?)\[/` + q + `\]`)
		tagCache[tag] = re
	}
	return re
}

// extractTag returns the trimmed body of the first [TAG]...[/TAG] block.
// Empty bodies count as absent.
func extractTag(raw, tag string) (string, bool) {
	m := tagRegexp(tag).FindStringSubmatch(raw)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	return v, v != ""
}

// extractAll returns the bodies of every [TAG]...[/TAG] block in order.
func extractAll(raw, tag string) []string {
	var out []string
	for _, m := range tagRegexp(tag).FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	return out
}

// fields pulls required and optional tags out of raw. Missing required tags
// are collected with the given prefix so a single ParseError can name all of
// them.
func fields(raw, prefix string, required, optional []string) (map[string]string, []string) {
	out := make(map[string]string, len(required)+len(optional))
	var missing []string
	for _, tag := range required {
		v, ok := extractTag(raw, tag)
		if !ok {
			missing = append(missing, prefix+tag)
			continue
		}
		out[tag] = v
	}
	for _, tag := range optional {
		if v, ok := extractTag(raw, tag); ok {
			out[tag] = v
		}
	}
	return out, missing
}

func splitList(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// DecodeArchitect parses an Architect completion into a Brief.
func DecodeArchitect(agentName, raw string) (ArchitectResponse, error) {
	f, missing := fields(raw, "",
		[]string{"TOPIC", "GOAL", "AUDIENCE", "LANGUAGE", "ASSEMBLER_ID", "PERSONA_ID", "WRITER_IDS"},
		[]string{"REASONING"},
	)
	if len(missing) > 0 {
		return ArchitectResponse{}, &ParseError{Agent: agentName, Missing: missing}
	}
	writers := splitList(f["WRITER_IDS"])
	if len(writers) == 0 {
		return ArchitectResponse{}, &ParseError{Agent: agentName, Invalid: []string{"WRITER_IDS"}}
	}
	return ArchitectResponse{
		Brief: Brief{
			Topic:            f["TOPIC"],
			Goal:             f["GOAL"],
			Audience:         f["AUDIENCE"],
			Language:         f["LANGUAGE"],
			AssemblerID:      f["ASSEMBLER_ID"],
			PersonaID:        f["PERSONA_ID"],
			AllowedWriterIDs: writers,
		},
		Reasoning: f["REASONING"],
	}, nil
}

// DecodeAssembler parses [COMPONENT] blocks. Every writer id must be one of
// writers; component ids must be unique.
func DecodeAssembler(agentName, raw string, writers []string) (AssemblerResponse, error) {
	blocks := extractAll(raw, "COMPONENT")
	if len(blocks) == 0 {
		return AssemblerResponse{}, &ParseError{Agent: agentName, Missing: []string{"COMPONENT"}}
	}
	allowed := make(map[string]bool, len(writers))
	for _, w := range writers {
		allowed[w] = true
	}

	var (
		missing, invalid []string
		comps            []Component
		seen             = map[string]bool{}
	)
	for i, block := range blocks {
		prefix := fmt.Sprintf("COMPONENT[%d].", i+1)
		f, miss := fields(block, prefix, []string{"ID", "HEADER", "INTENT", "WRITER_ID", "BRIDGE"}, nil)
		if len(miss) > 0 {
			missing = append(missing, miss...)
			continue
		}
		if seen[f["ID"]] {
			invalid = append(invalid, prefix+"ID")
		}
		seen[f["ID"]] = true
		if !allowed[f["WRITER_ID"]] {
			invalid = append(invalid, prefix+"WRITER_ID")
		}
		comps = append(comps, Component{
			ID:       f["ID"],
			Header:   f["HEADER"],
			Intent:   f["INTENT"],
			WriterID: f["WRITER_ID"],
			Bridge:   f["BRIDGE"],
		})
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return AssemblerResponse{}, &ParseError{Agent: agentName, Missing: missing, Invalid: invalid}
	}
	return AssemblerResponse{Blueprint: Blueprint{Components: comps}}, nil
}

func DecodeWriter(agentName, raw string) (WriterResponse, error) {
	v, ok := extractTag(raw, "CONTENT")
	if !ok {
		return WriterResponse{}, &ParseError{Agent: agentName, Missing: []string{"CONTENT"}}
	}
	return WriterResponse{Content: v}, nil
}

func DecodePersona(agentName, raw string) (PersonaResponse, error) {
	v, ok := extractTag(raw, "TEXT")
	if !ok {
		return PersonaResponse{}, &ParseError{Agent: agentName, Missing: []string{"TEXT"}}
	}
	return PersonaResponse{Text: v}, nil
}
