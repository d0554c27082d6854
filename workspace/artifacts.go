package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
)

// artifactDoc is the frontmatter of agent.md. The markdown body is the
// artifact content.
type artifactDoc struct {
	ID          string           `yaml:"id"`
	Type        string           `yaml:"type"`
	Description string           `yaml:"description,omitempty"`
	Name        string           `yaml:"name,omitempty"`
	Language    string           `yaml:"language,omitempty"`
	Tone        string           `yaml:"tone,omitempty"`
	Accent      string           `yaml:"accent,omitempty"`
	WriterIDs   []string         `yaml:"writerIds,omitempty"`
	Truths      []artifact.Truth `yaml:"truths,omitempty"`
}

func (w *Workspace) artifactPath(key artifact.Key) string {
	return filepath.Join(w.root, AgentsDir, string(key.Type), key.ID, artifactFile)
}

// Load reads one artifact. Unknown keys return ErrNotFound.
func (w *Workspace) Load(_ context.Context, key artifact.Key) (artifact.Artifact, error) {
	if _, err := artifact.ParseType(string(key.Type)); err != nil || !validName(key.ID) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	raw, err := os.ReadFile(w.artifactPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	a, err := DecodeArtifact(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if got := artifact.KeyOf(a); got != key {
		return nil, fmt.Errorf("%s: file declares %s", key, got)
	}
	return a, nil
}

// Save writes a, creating its directory when needed.
func (w *Workspace) Save(_ context.Context, a artifact.Artifact) error {
	key := artifact.KeyOf(a)
	if !validName(key.ID) {
		return fmt.Errorf("invalid artifact id %q", key.ID)
	}
	raw, err := EncodeArtifact(a)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeFile(w.artifactPath(key), raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Artifacts loads every artifact, ordered by type then id.
func (w *Workspace) Artifacts(ctx context.Context) ([]artifact.Artifact, error) {
	keys, err := w.Keys()
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Artifact, 0, len(keys))
	for _, k := range keys {
		a, err := w.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Keys lists the artifacts present on disk, ordered by type then id.
func (w *Workspace) Keys() ([]artifact.Key, error) {
	var keys []artifact.Key
	for _, t := range artifact.Types {
		entries, err := os.ReadDir(filepath.Join(w.root, AgentsDir, string(t)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		var ids []string
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(w.root, AgentsDir, string(t), e.Name(), artifactFile)); err == nil {
				ids = append(ids, e.Name())
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			keys = append(keys, artifact.Key{Type: t, ID: id})
		}
	}
	return keys, nil
}

// DecodeArtifact parses an agent.md document.
func DecodeArtifact(raw []byte) (artifact.Artifact, error) {
	front, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, err
	}
	var doc artifactDoc
	if err := yaml.Unmarshal(front, &doc); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	t, err := artifact.ParseType(doc.Type)
	if err != nil {
		return nil, err
	}
	if !validName(doc.ID) {
		return nil, fmt.Errorf("invalid artifact id %q", doc.ID)
	}
	for i, tr := range doc.Truths {
		if tr.Weight < 0 || tr.Weight > 1 {
			return nil, fmt.Errorf("truth %d %q has weight %.2f outside [0,1]", i+1, tr.Text, tr.Weight)
		}
	}
	meta := artifact.Meta{
		ID:          doc.ID,
		Description: doc.Description,
		Content:     strings.TrimSpace(string(body)),
		Truths:      doc.Truths,
	}
	switch t {
	case artifact.TypePersona:
		return &artifact.Persona{Meta: meta, Name: doc.Name, Language: doc.Language, Tone: doc.Tone, Accent: doc.Accent}, nil
	case artifact.TypeWriter:
		return &artifact.Writer{Meta: meta}, nil
	default:
		return &artifact.Assembler{Meta: meta, WriterIDs: doc.WriterIDs}, nil
	}
}

// EncodeArtifact renders a as an agent.md document.
func EncodeArtifact(a artifact.Artifact) ([]byte, error) {
	m := a.Base()
	doc := artifactDoc{
		ID:          m.ID,
		Type:        string(a.Type()),
		Description: m.Description,
		Truths:      artifact.SortedTruths(m.Truths),
	}
	switch v := a.(type) {
	case *artifact.Persona:
		doc.Name, doc.Language, doc.Tone, doc.Accent = v.Name, v.Language, v.Tone, v.Accent
	case *artifact.Writer:
	case *artifact.Assembler:
		doc.WriterIDs = v.WriterIDs
	default:
		return nil, fmt.Errorf("unhandled artifact kind %T", a)
	}
	front, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	return joinFrontmatter(front, m.Content), nil
}
