// Package feedback stores the append-only review log of each agent.
package feedback

import (
	"context"
	"time"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
)

// Source tells where an entry came from.
type Source string

const (
	SourceAction Source = "action"
	SourceManual Source = "manual"
)

// Outcome is the review result an entry records.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeFeedback Outcome = "feedback"
)

// Entry is one line of an agent's feedback log.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Outcome   Outcome   `json:"outcome"`
	Text      string    `json:"text,omitempty"`
	ThreadID  string    `json:"threadId,omitempty"`
	Turn      int       `json:"turn"`
}

// Key identifies whose log an entry belongs to. The built-in Architect uses
// Type "architect".
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string { return k.Type + "/" + k.ID }

// KeyFor converts an artifact key.
func KeyFor(k artifact.Key) Key { return Key{Type: string(k.Type), ID: k.ID} }

// Store is an append-only log per key. The evolution engine trims it with
// Consume once entries have been analysed, and Clear drops it on discard.
type Store interface {
	Append(ctx context.Context, key Key, e Entry) error
	Load(ctx context.Context, key Key) ([]Entry, error)
	Clear(ctx context.Context, key Key) error
	// Consume removes the oldest n entries of key. Entries appended after a
	// Load survive a Consume of what that Load returned.
	Consume(ctx context.Context, key Key, n int) error
}
