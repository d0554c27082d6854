package workspace

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const digestLimit = 160

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// digest collapses whitespace and cuts md to at most limit runes.
func digest(md string, limit int) string {
	joined := strings.Join(strings.Fields(md), " ")
	if r := []rune(joined); len(r) > limit {
		return string(r[:limit])
	}
	return joined
}

// RenderHTML converts a hub into a standalone HTML page.
func RenderHTML(h *Hub) ([]byte, error) {
	body, err := mdToHTML(h.Markdown())
	if err != nil {
		return nil, fmt.Errorf("render hub %s: %w", h.ID, err)
	}
	lang := h.Brief.Language
	if lang == "" {
		lang = "en"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n<meta charset=\"utf-8\">\n", html.EscapeString(lang))
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(h.Brief.Topic))
	fmt.Fprintf(&buf, "<meta name=\"description\" content=\"%s\">\n", html.EscapeString(digest(h.Intro, digestLimit)))
	buf.WriteString("</head>\n<body>\n<article>\n")
	buf.WriteString(body)
	buf.WriteString("</article>\n</body>\n</html>\n")
	return buf.Bytes(), nil
}

// ExportHTML renders hub id next to its markdown as hub.html and returns
// the written path.
func (w *Workspace) ExportHTML(ctx context.Context, id string) (string, error) {
	h, err := w.LoadHub(ctx, id)
	if err != nil {
		return "", err
	}
	page, err := RenderHTML(h)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.root, HubsDir, h.ID, "hub.html")
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeFile(path, page); err != nil {
		return "", fmt.Errorf("export hub %s: %w", id, err)
	}
	return path, nil
}
