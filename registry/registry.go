// Package registry turns loaded artifacts into runnable agents and checks
// their cross references before any pipeline starts.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/llm"
)

// IntegrityError lists, per assembler, the writer ids it references that
// were not loaded.
type IntegrityError struct {
	Missing map[string][]string
}

func (e *IntegrityError) Error() string {
	ids := make([]string, 0, len(e.Missing))
	for id := range e.Missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("assembler %q references unknown writers [%s]", id, strings.Join(e.Missing[id], ", ")))
	}
	return "registry integrity: " + strings.Join(parts, "; ")
}

// DuplicateError reports two artifacts sharing a type and id.
type DuplicateError struct {
	Key artifact.Key
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("registry: duplicate artifact %s", e.Key)
}

// Validate checks that ids are unique per type and that every assembler
// only references loaded writers. All missing ids are collected before
// returning.
func Validate(arts []artifact.Artifact) error {
	seen := make(map[artifact.Key]bool, len(arts))
	writers := make(map[string]bool)
	for _, a := range arts {
		k := artifact.KeyOf(a)
		if seen[k] {
			return &DuplicateError{Key: k}
		}
		seen[k] = true
		if w, ok := a.(*artifact.Writer); ok {
			writers[w.ID] = true
		}
	}

	missing := make(map[string][]string)
	for _, a := range arts {
		asm, ok := a.(*artifact.Assembler)
		if !ok {
			continue
		}
		for _, id := range asm.WriterIDs {
			if !writers[id] {
				missing[asm.ID] = append(missing[asm.ID], id)
			}
		}
	}
	if len(missing) > 0 {
		return &IntegrityError{Missing: missing}
	}
	return nil
}

// Registry holds one agent instance per artifact plus the built-in
// Architect. Instances keep their own conversation history, so a Registry
// serves a single pipeline run.
type Registry struct {
	architect  *agent.Architect
	personas   map[string]*agent.Persona
	writers    map[string]*agent.Writer
	assemblers map[string]*agent.Assembler
	order      []artifact.Key
}

// New validates arts and builds an agent for each of them.
func New(arts []artifact.Artifact, client llm.Client, opts agent.Options) (*Registry, error) {
	if err := Validate(arts); err != nil {
		return nil, err
	}
	r := &Registry{
		architect:  agent.NewArchitect(client, opts),
		personas:   make(map[string]*agent.Persona),
		writers:    make(map[string]*agent.Writer),
		assemblers: make(map[string]*agent.Assembler),
	}
	for _, a := range arts {
		switch v := a.(type) {
		case *artifact.Persona:
			r.personas[v.ID] = agent.NewPersona(v, client, opts)
		case *artifact.Writer:
			r.writers[v.ID] = agent.NewWriter(v, client, opts)
		case *artifact.Assembler:
			r.assemblers[v.ID] = agent.NewAssembler(v, client, opts)
		default:
			return nil, fmt.Errorf("registry: unhandled artifact kind %T", a)
		}
		r.order = append(r.order, artifact.KeyOf(a))
	}
	return r, nil
}

func (r *Registry) Architect() *agent.Architect { return r.architect }

func (r *Registry) Persona(id string) (*agent.Persona, bool) {
	p, ok := r.personas[id]
	return p, ok
}

func (r *Registry) Writer(id string) (*agent.Writer, bool) {
	w, ok := r.writers[id]
	return w, ok
}

func (r *Registry) Assembler(id string) (*agent.Assembler, bool) {
	a, ok := r.assemblers[id]
	return a, ok
}

// Writers returns the known writers among ids, in the order given. Unknown
// and repeated ids are skipped.
func (r *Registry) Writers(ids []string) []*agent.Writer {
	out := make([]*agent.Writer, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		w, ok := r.writers[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, w)
	}
	return out
}

// Profiles lists id and description of every artifact of type t, in load
// order. The Architect chooses among these.
func (r *Registry) Profiles(t artifact.Type) []agent.Profile {
	var out []agent.Profile
	for _, k := range r.order {
		if k.Type != t {
			continue
		}
		var meta *artifact.Meta
		switch t {
		case artifact.TypePersona:
			meta = r.personas[k.ID].Artifact().Base()
		case artifact.TypeWriter:
			meta = r.writers[k.ID].Artifact().Base()
		case artifact.TypeAssembler:
			meta = r.assemblers[k.ID].Artifact().Base()
		}
		out = append(out, agent.Profile{ID: meta.ID, Description: meta.Description})
	}
	return out
}
