// Package workspace stores agent artifacts and hubs as markdown files with
// YAML frontmatter under a single root directory.
package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	AgentsDir = "agents"
	HubsDir   = "hubs"

	artifactFile = "agent.md"
	hubFile      = "hub.md"
)

// ErrNotFound wraps fs.ErrNotExist so callers can test either.
var ErrNotFound = fmt.Errorf("workspace: %w", fs.ErrNotExist)

// Workspace is rooted at a directory holding agents/ and hubs/.
type Workspace struct {
	root string
	mu   sync.Mutex
}

// Open makes sure the layout exists under root.
func Open(root string) (*Workspace, error) {
	if root == "" {
		return nil, errors.New("workspace root is required")
	}
	for _, dir := range []string{AgentsDir, HubsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
	}
	return &Workspace{root: root}, nil
}

func (w *Workspace) Root() string { return w.root }

// AgentsRoot is where per-agent directories live. The JSONL feedback store
// shares it so every log sits next to its agent.md.
func (w *Workspace) AgentsRoot() string { return filepath.Join(w.root, AgentsDir) }

// writeFile writes through a temp file and rename so a crash never leaves a
// half-written document behind.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

const fence = "---"

// splitFrontmatter separates a leading "---" YAML block from the body.
func splitFrontmatter(raw []byte) (front []byte, body []byte, err error) {
	text := strings.TrimPrefix(string(raw), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, fence+"\n") {
		return nil, nil, errors.New("missing frontmatter")
	}
	rest := text[len(fence)+1:]
	if strings.HasPrefix(rest, fence+"\n") {
		return nil, []byte(rest[len(fence)+1:]), nil
	}
	end := strings.Index(rest, "\n"+fence+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+fence) {
			return []byte(rest[:len(rest)-len(fence)-1]), nil, nil
		}
		return nil, nil, errors.New("unterminated frontmatter")
	}
	return []byte(rest[:end+1]), []byte(rest[end+len(fence)+2:]), nil
}

func joinFrontmatter(front []byte, body string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	buf.Write(front)
	if len(front) > 0 && front[len(front)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(fence + "\n")
	body = strings.TrimLeft(body, "\n")
	if body != "" {
		buf.WriteByte('\n')
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func validName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
