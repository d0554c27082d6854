// Package evolution turns an agent's feedback log into changes to its
// learned truths, or pauses when the feedback contradicts what the agent is.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/metrics"
)

var (
	ErrEmptyFeedback = errors.New("feedback buffer is empty")
	ErrNotFound      = errors.New("agent not found")
)

// PreconditionError is returned before any call is made. It wraps
// ErrEmptyFeedback or ErrNotFound.
type PreconditionError struct {
	Key artifact.Key
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("evolve %s: %v", e.Key, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// CallError is an analyzer or summarizer failure. Stage is "analyze" or
// "summarize".
type CallError struct {
	Key   artifact.Key
	Stage string
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("evolve %s: %s: %v", e.Key, e.Stage, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ArtifactStore loads and saves artifacts. Load must return an error
// wrapping fs.ErrNotExist for unknown keys.
type ArtifactStore interface {
	Load(ctx context.Context, key artifact.Key) (artifact.Artifact, error)
	Save(ctx context.Context, a artifact.Artifact) error
}

// Result describes one evolution cycle. When Paused is set nothing was
// persisted and Proposed holds what would have been saved.
type Result struct {
	Key      artifact.Key
	Analysis Analysis
	Conflict ConflictType
	Paused   bool
	Proposed artifact.Artifact
	Consumed int
}

func (r *Result) ProposedTruths() []artifact.Truth { return r.Proposed.Base().Truths }

func (r *Result) ProposedDescription() string { return r.Proposed.Base().Description }

type Config struct {
	Artifacts  ArtifactStore
	Feedback   feedback.Store
	Analyzer   Analyzer
	Summarizer Summarizer
	// Policy defaults to TrustAnalysis.
	Policy  Policy
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

type Engine struct {
	artifacts  ArtifactStore
	feedback   feedback.Store
	analyzer   Analyzer
	summarizer Summarizer
	policy     Policy
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Artifacts == nil:
		return nil, errors.New("evolution: artifact store is required")
	case cfg.Feedback == nil:
		return nil, errors.New("evolution: feedback store is required")
	case cfg.Analyzer == nil:
		return nil, errors.New("evolution: analyzer is required")
	case cfg.Summarizer == nil:
		return nil, errors.New("evolution: summarizer is required")
	}
	e := &Engine{
		artifacts:  cfg.Artifacts,
		feedback:   cfg.Feedback,
		analyzer:   cfg.Analyzer,
		summarizer: cfg.Summarizer,
		policy:     cfg.Policy,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if e.policy == nil {
		e.policy = TrustAnalysis
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e, nil
}

func (e *Engine) load(ctx context.Context, key artifact.Key) (artifact.Artifact, error) {
	art, err := e.artifacts.Load(ctx, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PreconditionError{Key: key, Err: ErrNotFound}
		}
		return nil, fmt.Errorf("evolve %s: load: %w", key, err)
	}
	return art, nil
}

// Evolve runs one cycle for key. A hard conflict returns a paused Result and
// leaves both the artifact and its feedback untouched.
func (e *Engine) Evolve(ctx context.Context, key artifact.Key) (*Result, error) {
	art, err := e.load(ctx, key)
	if err != nil {
		return nil, err
	}
	fkey := feedback.KeyFor(key)
	entries, err := e.feedback.Load(ctx, fkey)
	if err != nil {
		return nil, fmt.Errorf("evolve %s: load feedback: %w", key, err)
	}
	if len(entries) == 0 {
		return nil, &PreconditionError{Key: key, Err: ErrEmptyFeedback}
	}

	log := e.logger.With("agent", key.String())
	log.Info("analysing feedback", "entries", len(entries), "truths", len(art.Base().Truths))

	an, err := e.analyzer.Analyze(ctx, art, entries)
	if err != nil {
		return nil, &CallError{Key: key, Stage: "analyze", Err: err}
	}
	conflict := e.policy.Classify(an)

	staged := artifact.Clone(art)
	staged.Base().Truths = ApplyProposals(art.Base().Truths, an.Proposals)

	desc, err := e.summarizer.Summarize(ctx, staged)
	if err != nil {
		return nil, &CallError{Key: key, Stage: "summarize", Err: err}
	}
	if desc != "" {
		staged.Base().Description = desc
	}

	res := &Result{
		Key:      key,
		Analysis: an,
		Conflict: conflict,
		Proposed: staged,
		Consumed: len(entries),
	}
	e.metrics.Evolution(string(conflict))

	if conflict == ConflictHard {
		res.Paused = true
		log.Warn("hard conflict, evolution paused",
			"violated_truth", an.ViolatedTruth,
			"violated_field", an.ViolatedMetadataField,
			"suggested_fork", an.SuggestedForkName)
		return res, nil
	}

	if err := e.artifacts.Save(ctx, staged); err != nil {
		return nil, fmt.Errorf("evolve %s: save: %w", key, err)
	}
	if err := e.feedback.Consume(ctx, fkey, res.Consumed); err != nil {
		return nil, fmt.Errorf("evolve %s: consume feedback: %w", key, err)
	}
	log.Info("evolution applied", "conflict", conflict, "proposals", len(an.Proposals), "truths", len(staged.Base().Truths))
	return res, nil
}

// Fork resolves a paused result by saving a specialised variant under a new
// id derived from name (or the suggested fork name). Violated and
// contradictory truths are dropped from the variant, a persona gets the
// requested metadata value, and the analysed entries leave the source
// buffer. The source artifact itself is not modified.
func (e *Engine) Fork(ctx context.Context, res *Result, name string) (artifact.Artifact, error) {
	if res == nil || !res.Paused {
		return nil, errors.New("fork: no paused evolution to resolve")
	}
	if strings.TrimSpace(name) == "" {
		name = res.Analysis.SuggestedForkName
	}
	id := artifact.Slug(name)
	if id == "" {
		return nil, errors.New("fork: a name is required")
	}
	if id == res.Key.ID {
		return nil, fmt.Errorf("fork: %q is the source agent", id)
	}
	target := artifact.Key{Type: res.Key.Type, ID: id}
	if _, err := e.artifacts.Load(ctx, target); err == nil {
		return nil, fmt.Errorf("fork: %s already exists", target)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fork: %w", err)
	}

	fork := artifact.Clone(res.Proposed)
	m := fork.Base()
	m.ID = id
	drop := append([]string{res.Analysis.ViolatedTruth}, res.Analysis.ContradictoryTruths...)
	m.Truths = dropTruths(m.Truths, drop...)
	if p, ok := fork.(*artifact.Persona); ok && res.Analysis.ViolatedMetadataField != "" {
		if err := setPersonaField(p, res.Analysis.ViolatedMetadataField, res.Analysis.NewMetadataValue); err != nil {
			e.logger.Warn("fork: metadata override skipped", "agent", target.String(), "error", err)
		}
	}

	if err := e.artifacts.Save(ctx, fork); err != nil {
		return nil, fmt.Errorf("fork: save %s: %w", target, err)
	}
	if err := e.feedback.Consume(ctx, feedback.KeyFor(res.Key), res.Consumed); err != nil {
		return nil, fmt.Errorf("fork: consume feedback: %w", err)
	}
	e.logger.Info("fork created", "source", res.Key.String(), "fork", target.String())
	return fork, nil
}

func setPersonaField(p *artifact.Persona, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("empty value for %q", field)
	}
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "name":
		p.Name = value
	case "language":
		p.Language = value
	case "tone":
		p.Tone = value
	case "accent":
		p.Accent = value
	default:
		return fmt.Errorf("unknown persona field %q", field)
	}
	return nil
}

// Discard drops the feedback buffer of key without changing the artifact.
func (e *Engine) Discard(ctx context.Context, key artifact.Key) error {
	if err := e.feedback.Clear(ctx, feedback.KeyFor(key)); err != nil {
		return fmt.Errorf("discard %s: %w", key, err)
	}
	e.logger.Info("feedback discarded", "agent", key.String())
	return nil
}

// Outcome is the per-target result of EvolveAll.
type Outcome struct {
	Key    artifact.Key
	Result *Result
	Err    error
}

// EvolveAll evolves every key in order. A failure on one key is recorded in
// its Outcome and does not stop the others. Keys with an empty buffer are
// reported with ErrEmptyFeedback.
func (e *Engine) EvolveAll(ctx context.Context, keys []artifact.Key) []Outcome {
	out := make([]Outcome, 0, len(keys))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			out = append(out, Outcome{Key: k, Err: err})
			continue
		}
		res, err := e.Evolve(ctx, k)
		if err != nil && !errors.Is(err, ErrEmptyFeedback) {
			e.logger.Error("evolution failed, continuing", "agent", k.String(), "error", err)
		}
		out = append(out, Outcome{Key: k, Result: res, Err: err})
	}
	return out
}
