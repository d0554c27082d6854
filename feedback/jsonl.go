package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the log file inside each agent directory.
const FileName = "feedback.jsonl"

// JSONLStore keeps one newline-delimited JSON file per agent directory:
// <root>/<type>/<id>/feedback.jsonl.
type JSONLStore struct {
	root string
	mu   sync.Mutex
}

func NewJSONLStore(root string) *JSONLStore {
	return &JSONLStore{root: root}
}

// Path returns the log location for key.
func (s *JSONLStore) Path(key Key) string {
	return filepath.Join(s.root, key.Type, key.ID, FileName)
}

func (s *JSONLStore) Append(_ context.Context, key Key, e Entry) error {
	if err := validKey(key); err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write feedback log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close feedback log: %w", err)
	}
	return nil
}

func (s *JSONLStore) Load(_ context.Context, key Key) ([]Entry, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open feedback log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("feedback log %s line %d: %w", key, n, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read feedback log: %w", err)
	}
	return out, nil
}

func (s *JSONLStore) Clear(_ context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear feedback log: %w", err)
	}
	return nil
}

// Consume drops the oldest n entries of key and rewrites the rest in place.
// The file is removed once nothing is left.
func (s *JSONLStore) Consume(_ context.Context, key Key, n int) error {
	if err := validKey(key); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read feedback log: %w", err)
	}
	var rest []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if n > 0 {
			n--
			continue
		}
		rest = append(rest, line)
	}
	if len(rest) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear feedback log: %w", err)
		}
		return nil
	}
	return rewrite(path, strings.Join(rest, "\n")+"\n")
}

// rewrite replaces path through a temp file in the same directory.
func rewrite(path, body string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".feedback-*.tmp")
	if err != nil {
		return fmt.Errorf("rewrite feedback log: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("rewrite feedback log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rewrite feedback log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rewrite feedback log: %w", err)
	}
	return nil
}

func validKey(k Key) error {
	for _, part := range []string{k.Type, k.ID} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("invalid feedback key %q", k.String())
		}
	}
	return nil
}
