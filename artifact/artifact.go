// Package artifact defines the externally authored agent definitions and the
// truths learned for them.
package artifact

import (
	"fmt"
	"sort"
	"strings"
)

// Type discriminates artifact kinds.
type Type string

const (
	TypePersona   Type = "persona"
	TypeWriter    Type = "writer"
	TypeAssembler Type = "assembler"
)

// Types lists every artifact kind in a stable order.
var Types = []Type{TypePersona, TypeWriter, TypeAssembler}

// ParseType validates s as an artifact type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypePersona, TypeWriter, TypeAssembler:
		return t, nil
	}
	return "", fmt.Errorf("unknown artifact type %q", s)
}

// Truth is a unit of learned behavioural guidance. Weight stays in [0,1].
type Truth struct {
	Text   string  `yaml:"text" json:"text"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Meta holds the fields shared by every artifact kind.
type Meta struct {
	ID          string
	Description string
	Content     string
	Truths      []Truth
}

// Artifact is a sealed sum type: *Persona, *Writer or *Assembler.
type Artifact interface {
	Type() Type
	Base() *Meta
	isArtifact()
}

type Persona struct {
	Meta
	Name     string
	Language string
	Tone     string
	Accent   string
}

type Writer struct {
	Meta
}

type Assembler struct {
	Meta
	WriterIDs []string
}

func (*Persona) Type() Type   { return TypePersona }
func (*Writer) Type() Type    { return TypeWriter }
func (*Assembler) Type() Type { return TypeAssembler }

func (p *Persona) Base() *Meta   { return &p.Meta }
func (w *Writer) Base() *Meta    { return &w.Meta }
func (a *Assembler) Base() *Meta { return &a.Meta }

func (*Persona) isArtifact()   {}
func (*Writer) isArtifact()    {}
func (*Assembler) isArtifact() {}

// Key identifies an artifact within a workspace.
type Key struct {
	Type Type
	ID   string
}

func (k Key) String() string { return string(k.Type) + "/" + k.ID }

// KeyOf returns the key of a.
func KeyOf(a Artifact) Key {
	return Key{Type: a.Type(), ID: a.Base().ID}
}

// Clone returns a deep copy of a so callers can stage changes without
// touching the loaded value.
func Clone(a Artifact) Artifact {
	switch v := a.(type) {
	case *Persona:
		c := *v
		c.Truths = cloneTruths(v.Truths)
		return &c
	case *Writer:
		c := *v
		c.Truths = cloneTruths(v.Truths)
		return &c
	case *Assembler:
		c := *v
		c.Truths = cloneTruths(v.Truths)
		c.WriterIDs = append([]string(nil), v.WriterIDs...)
		return &c
	default:
		panic(fmt.Sprintf("artifact: unhandled kind %T", a))
	}
}

func cloneTruths(ts []Truth) []Truth {
	if ts == nil {
		return nil
	}
	return append([]Truth(nil), ts...)
}

// SortedTruths returns truths ordered by descending weight, then text.
func SortedTruths(ts []Truth) []Truth {
	out := cloneTruths(ts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Text < out[j].Text
	})
	return out
}
