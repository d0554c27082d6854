package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/artifact"
)

// TodoMarker matches the blockquote left in a section that still needs
// content.
var TodoMarker = regexp.MustCompile(`(?m)^>\s*\[!TODO\]`)

// IsPending is the default pending-section predicate.
func IsPending(body string) bool { return TodoMarker.MatchString(body) }

// PendingBody is the placeholder written for a fresh section.
func PendingBody(c agent.Component) string {
	return "> [!TODO] " + strings.Join(strings.Fields(c.Intent), " ")
}

// Hub is one content hub: its plan, styled intro, and one markdown body per
// blueprint component.
type Hub struct {
	ID        string
	Brief     agent.Brief
	Blueprint agent.Blueprint
	Intro     string
	sections  map[string]string
}

// NewHub returns a hub whose every section is pending.
func NewHub(id string, brief agent.Brief, bp agent.Blueprint, intro string) *Hub {
	h := &Hub{ID: id, Brief: brief, Blueprint: bp, Intro: intro, sections: make(map[string]string)}
	for _, c := range bp.Components {
		h.sections[c.ID] = PendingBody(c)
	}
	return h
}

// Section returns the body of component id.
func (h *Hub) Section(id string) (string, bool) {
	s, ok := h.sections[id]
	return s, ok
}

func (h *Hub) SetSection(id, body string) {
	if h.sections == nil {
		h.sections = make(map[string]string)
	}
	h.sections[id] = strings.TrimSpace(body)
}

// Pending lists the ids of components whose body matches isPending, in
// blueprint order.
func (h *Hub) Pending(isPending func(string) bool) []string {
	var ids []string
	for _, c := range h.Blueprint.Components {
		if isPending(h.sections[c.ID]) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type hubDoc struct {
	ID        string          `yaml:"id"`
	Brief     agent.Brief     `yaml:"brief"`
	Blueprint agent.Blueprint `yaml:"blueprint"`
}

// Markdown renders the hub body without frontmatter.
func (h *Hub) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", h.Brief.Topic)
	if intro := strings.TrimSpace(h.Intro); intro != "" {
		sb.WriteString(intro)
		sb.WriteString("\n\n")
	}
	for _, c := range h.Blueprint.Components {
		fmt.Fprintf(&sb, "## %s\n\n", c.Header)
		if body := strings.TrimSpace(h.sections[c.ID]); body != "" {
			sb.WriteString(body)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// EncodeHub renders the hub.md document.
func EncodeHub(h *Hub) ([]byte, error) {
	front, err := yaml.Marshal(hubDoc{ID: h.ID, Brief: h.Brief, Blueprint: h.Blueprint})
	if err != nil {
		return nil, fmt.Errorf("hub frontmatter: %w", err)
	}
	return joinFrontmatter(front, h.Markdown()), nil
}

// DecodeHub parses a hub.md document. Level-two headings are matched to
// blueprint components by header text, in order. Other headings stay part
// of the surrounding body and a component without a heading is pending.
func DecodeHub(raw []byte) (*Hub, error) {
	front, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, err
	}
	var doc hubDoc
	if err := yaml.Unmarshal(front, &doc); err != nil {
		return nil, fmt.Errorf("hub frontmatter: %w", err)
	}
	h := &Hub{ID: doc.ID, Brief: doc.Brief, Blueprint: doc.Blueprint, sections: make(map[string]string)}

	marks := headings(body)
	type cut struct {
		id       string
		from, to int
	}
	var cuts []cut
	introFrom, next := 0, 0
	if len(marks) > 0 && marks[0].level == 1 {
		introFrom, next = marks[0].contentEnd, 1
	}
	for _, c := range h.Blueprint.Components {
		h.sections[c.ID] = PendingBody(c)
		for i := next; i < len(marks); i++ {
			if marks[i].level == 2 && marks[i].header == strings.TrimSpace(c.Header) {
				cuts = append(cuts, cut{id: c.ID, from: marks[i].lineStart, to: marks[i].contentEnd})
				next = i + 1
				break
			}
		}
	}

	introTo := len(body)
	if len(cuts) > 0 {
		introTo = cuts[0].from
	}
	h.Intro = strings.TrimSpace(string(body[introFrom:introTo]))
	for i, c := range cuts {
		stop := len(body)
		if i+1 < len(cuts) {
			stop = cuts[i+1].from
		}
		h.sections[c.id] = strings.TrimSpace(string(body[c.to:stop]))
	}
	return h, nil
}

type mark struct {
	level      int
	header     string
	lineStart  int
	contentEnd int
}

// headings walks the goldmark AST of src and returns every top-level
// heading of level one or two with the byte offsets of its line.
func headings(src []byte) []mark {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		hd, ok := n.(*ast.Heading)
		if !ok || hd.Level > 2 || hd.Lines().Len() == 0 {
			continue
		}
		first, last := hd.Lines().At(0), hd.Lines().At(hd.Lines().Len()-1)
		start := bytes.LastIndexByte(src[:first.Start], '\n') + 1
		end := lineEnd(src, last.Stop)
		// Setext headings are followed by their underline.
		if !bytes.HasPrefix(bytes.TrimLeft(src[start:], " "), []byte("#")) {
			end = lineEnd(src, end)
		}
		marks = append(marks, mark{
			level:      hd.Level,
			header:     strings.TrimSpace(string(hd.Lines().Value(src))),
			lineStart:  start,
			contentEnd: end,
		})
	}
	return marks
}

// lineEnd returns the offset just past the newline ending the line that
// contains pos.
func lineEnd(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	if nl := bytes.IndexByte(src[pos:], '\n'); nl >= 0 {
		return pos + nl + 1
	}
	return len(src)
}

func slugOr(s, fallback string) string {
	if id := artifact.Slug(s); id != "" {
		return id
	}
	return fallback
}

func (w *Workspace) hubPath(id string) string {
	return filepath.Join(w.root, HubsDir, id, hubFile)
}

// NewHubID derives a free hub id from topic, adding -2, -3 and so on when
// the slug is taken.
func (w *Workspace) NewHubID(topic string) (string, error) {
	base := slugOr(topic, "hub")
	for n := 1; n < 1000; n++ {
		id := base
		if n > 1 {
			id = base + "-" + strconv.Itoa(n)
		}
		if _, err := os.Stat(w.hubPath(id)); errors.Is(err, fs.ErrNotExist) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free hub id for %q", topic)
}

// SaveHub writes h to hubs/<id>/hub.md.
func (w *Workspace) SaveHub(_ context.Context, h *Hub) error {
	if !validName(h.ID) {
		return fmt.Errorf("invalid hub id %q", h.ID)
	}
	raw, err := EncodeHub(h)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeFile(w.hubPath(h.ID), raw); err != nil {
		return fmt.Errorf("save hub %s: %w", h.ID, err)
	}
	return nil
}

// LoadHub reads hubs/<id>/hub.md.
func (w *Workspace) LoadHub(_ context.Context, id string) (*Hub, error) {
	if !validName(id) {
		return nil, fmt.Errorf("hub %q: %w", id, ErrNotFound)
	}
	raw, err := os.ReadFile(w.hubPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("hub %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	h, err := DecodeHub(raw)
	if err != nil {
		return nil, fmt.Errorf("hub %q: %w", id, err)
	}
	return h, nil
}

// Hubs lists hub ids in lexical order.
func (w *Workspace) Hubs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, HubsDir))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			if _, err := os.Stat(w.hubPath(e.Name())); err == nil {
				ids = append(ids, e.Name())
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
