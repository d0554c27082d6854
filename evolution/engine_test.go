package evolution

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/llm"
)

type memArtifacts struct {
	mu    sync.Mutex
	items map[artifact.Key]artifact.Artifact
	saves int
}

func newMemArtifacts(arts ...artifact.Artifact) *memArtifacts {
	m := &memArtifacts{items: make(map[artifact.Key]artifact.Artifact)}
	for _, a := range arts {
		m.items[artifact.KeyOf(a)] = a
	}
	return m
}

func (m *memArtifacts) Load(_ context.Context, key artifact.Key) (artifact.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
	}
	return artifact.Clone(a), nil
}

func (m *memArtifacts) Save(_ context.Context, a artifact.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.items[artifact.KeyOf(a)] = artifact.Clone(a)
	return nil
}

type fixedAnalyzer struct {
	an    Analysis
	err   error
	calls int
	// during runs while the call is in flight.
	during func()
}

func (f *fixedAnalyzer) Analyze(context.Context, artifact.Artifact, []feedback.Entry) (Analysis, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	return f.an, f.err
}

type fixedSummarizer struct {
	text  string
	calls int
}

func (f *fixedSummarizer) Summarize(context.Context, artifact.Artifact) (string, error) {
	f.calls++
	return f.text, nil
}

var (
	personaKey = artifact.Key{Type: artifact.TypePersona, ID: "guide"}
	ts         = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

func guide() *artifact.Persona {
	return &artifact.Persona{
		Meta: artifact.Meta{
			ID:          "guide",
			Description: "A London tour guide.",
			Content:     "Speak about your city.",
			Truths:      []artifact.Truth{{Text: "lives in London", Weight: 0.5}},
		},
		Name:     "Edith",
		Language: "English",
		Tone:     "warm",
		Accent:   "British",
	}
}

type fixture struct {
	arts  *memArtifacts
	fb    feedback.Store
	an    *fixedAnalyzer
	sum   *fixedSummarizer
	eng   *Engine
	fbKey feedback.Key
}

func newFixture(t *testing.T, an Analysis, policy Policy, texts ...string) *fixture {
	t.Helper()
	f := &fixture{
		arts:  newMemArtifacts(guide()),
		fb:    feedback.NewJSONLStore(t.TempDir()),
		an:    &fixedAnalyzer{an: an},
		sum:   &fixedSummarizer{text: "A tour guide."},
		fbKey: feedback.KeyFor(personaKey),
	}
	for i, text := range texts {
		require.NoError(t, f.fb.Append(context.Background(), f.fbKey, feedback.Entry{
			Timestamp: ts, Source: feedback.SourceAction, Outcome: feedback.OutcomeFeedback, Text: text, Turn: i,
		}))
	}
	eng, err := New(Config{Artifacts: f.arts, Feedback: f.fb, Analyzer: f.an, Summarizer: f.sum, Policy: policy})
	require.NoError(t, err)
	f.eng = eng
	return f
}

func (f *fixture) buffer(t *testing.T) []feedback.Entry {
	t.Helper()
	got, err := f.fb.Load(context.Background(), f.fbKey)
	require.NoError(t, err)
	return got
}

func (f *fixture) stored(t *testing.T) *artifact.Persona {
	t.Helper()
	a, err := f.arts.Load(context.Background(), personaKey)
	require.NoError(t, err)
	return a.(*artifact.Persona)
}

func TestEvolve_SoftAppliesAndClears(t *testing.T) {
	f := newFixture(t, Analysis{
		ConflictType: ConflictSoft,
		Proposals: []Proposal{
			{Text: "mentions hidden pubs", Action: ActionAdd},
			{Text: "LIVES IN LONDON", Action: ActionStrengthen},
		},
	}, nil, "Tell me about pubs")

	res, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	assert.False(t, res.Paused)
	assert.Equal(t, 1, res.Consumed)

	got := f.stored(t)
	assert.Equal(t, []artifact.Truth{
		{Text: "lives in London", Weight: 0.7},
		{Text: "mentions hidden pubs", Weight: InitialWeight},
	}, got.Truths)
	assert.Equal(t, "A tour guide.", got.Description)
	assert.Empty(t, f.buffer(t))
}

func TestEvolve_NoneConflictStillPersists(t *testing.T) {
	f := newFixture(t, Analysis{ConflictType: ConflictNone}, nil, "fine")
	_, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	assert.Equal(t, 1, f.arts.saves)
	assert.Empty(t, f.buffer(t))
}

func TestEvolve_HardConflictPausesWithoutSideEffects(t *testing.T) {
	f := newFixture(t, Analysis{
		ThoughtProcess:    "The user says the guide is from Madrid, negating London.",
		ConflictType:      ConflictHard,
		ForkRecommended:   true,
		ViolatedTruth:     "lives in London",
		SuggestedForkName: "Madrid guide",
		Proposals: []Proposal{
			{Text: "lives in London", Action: ActionWeaken},
			{Text: "is from Madrid", Action: ActionAdd},
		},
	}, nil, "You are from Madrid")

	res, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, ConflictHard, res.Conflict)
	assert.Equal(t, "lives in London", res.Analysis.ViolatedTruth)

	// The summary is still generated for the proposal.
	assert.Equal(t, 1, f.sum.calls)
	assert.Equal(t, "A tour guide.", res.ProposedDescription())
	assert.Equal(t, []artifact.Truth{
		{Text: "lives in London", Weight: 0.3},
		{Text: "is from Madrid", Weight: InitialWeight},
	}, res.ProposedTruths())

	// Nothing persisted, buffer kept.
	assert.Equal(t, 0, f.arts.saves)
	assert.Equal(t, guide().Meta, f.stored(t).Meta)
	assert.Len(t, f.buffer(t), 1)
}

func TestEvolve_EscalatingPolicyCatchesViolatedTruth(t *testing.T) {
	// The analysis under-reports the conflict but still names the violated truth.
	an := Analysis{
		ConflictType:  ConflictSoft,
		ViolatedTruth: "lives in London",
		Proposals:     []Proposal{{Text: "is from Madrid", Action: ActionAdd}},
	}

	f := newFixture(t, an, Escalating, "You are from Madrid")
	res, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, ConflictHard, res.Conflict)
	assert.Equal(t, []artifact.Truth{{Text: "lives in London", Weight: 0.5}}, f.stored(t).Truths)
	assert.Len(t, f.buffer(t), 1)

	f = newFixture(t, an, TrustAnalysis, "You are from Madrid")
	res, err = f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	assert.False(t, res.Paused)
}

func TestEvolve_Preconditions(t *testing.T) {
	f := newFixture(t, Analysis{}, nil)

	_, err := f.eng.Evolve(context.Background(), personaKey)
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrEmptyFeedback)

	_, err = f.eng.Evolve(context.Background(), artifact.Key{Type: "architect", ID: "architect"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 0, f.an.calls)
	assert.Equal(t, 0, f.sum.calls)
}

func TestEvolve_AnalyzerErrorHasNoEffect(t *testing.T) {
	f := newFixture(t, Analysis{}, nil, "x")
	f.an.err = errors.New("quota")
	_, err := f.eng.Evolve(context.Background(), personaKey)
	require.Error(t, err)
	assert.Equal(t, 0, f.arts.saves)
	assert.Len(t, f.buffer(t), 1)
}

func TestFork_CreatesVariantAndClearsSource(t *testing.T) {
	f := newFixture(t, Analysis{
		ConflictType:          ConflictHard,
		ViolatedTruth:         "lives in London",
		ViolatedMetadataField: "accent",
		NewMetadataValue:      "Castilian",
		SuggestedForkName:     "Madrid guide",
		Proposals:             []Proposal{{Text: "is from Madrid", Action: ActionAdd}},
	}, nil, "You are from Madrid")

	res, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	require.True(t, res.Paused)

	fork, err := f.eng.Fork(context.Background(), res, "")
	require.NoError(t, err)
	p := fork.(*artifact.Persona)
	assert.Equal(t, "madrid-guide", p.ID)
	assert.Equal(t, "Castilian", p.Accent)
	assert.Equal(t, []artifact.Truth{{Text: "is from Madrid", Weight: InitialWeight}}, p.Truths)

	// Source untouched, buffer consumed.
	assert.Equal(t, guide().Meta, f.stored(t).Meta)
	assert.Empty(t, f.buffer(t))

	_, err = f.eng.Fork(context.Background(), res, "Madrid guide")
	assert.ErrorContains(t, err, "already exists")
}

func TestEvolve_KeepsFeedbackAppendedMidCycle(t *testing.T) {
	f := newFixture(t, Analysis{ConflictType: ConflictSoft}, nil, "shorter", "warmer")
	late := feedback.Entry{Timestamp: ts, Source: feedback.SourceManual, Outcome: feedback.OutcomeFeedback, Text: "mention tea"}
	f.an.during = func() {
		require.NoError(t, f.fb.Append(context.Background(), f.fbKey, late))
	}

	res, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Consumed)

	left := f.buffer(t)
	require.Len(t, left, 1)
	assert.Equal(t, "mention tea", left[0].Text)
}

func TestFork_KeepsFeedbackAppendedWhilePaused(t *testing.T) {
	f := newFixture(t, Analysis{ConflictType: ConflictHard, SuggestedForkName: "Madrid guide"}, nil, "You are from Madrid")
	res, err := f.eng.Evolve(context.Background(), personaKey)
	require.NoError(t, err)
	require.True(t, res.Paused)

	require.NoError(t, f.fb.Append(context.Background(), f.fbKey, feedback.Entry{
		Timestamp: ts, Source: feedback.SourceManual, Outcome: feedback.OutcomeFeedback, Text: "mention tea",
	}))
	_, err = f.eng.Fork(context.Background(), res, "")
	require.NoError(t, err)

	left := f.buffer(t)
	require.Len(t, left, 1)
	assert.Equal(t, "mention tea", left[0].Text)
}

func TestEvolve_CallFailuresAreTyped(t *testing.T) {
	f := newFixture(t, Analysis{}, nil, "x")
	f.an.err = errors.New("quota")
	_, err := f.eng.Evolve(context.Background(), personaKey)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "analyze", callErr.Stage)
	assert.ErrorContains(t, err, "quota")
}

func TestFork_RequiresPausedResult(t *testing.T) {
	f := newFixture(t, Analysis{}, nil)
	_, err := f.eng.Fork(context.Background(), &Result{Key: personaKey}, "x")
	assert.ErrorContains(t, err, "no paused evolution")
}

func TestDiscard_ClearsBufferOnly(t *testing.T) {
	f := newFixture(t, Analysis{}, nil, "a", "b")
	require.NoError(t, f.eng.Discard(context.Background(), personaKey))
	assert.Empty(t, f.buffer(t))
	assert.Equal(t, 0, f.arts.saves)
}

func TestEvolveAll_SkipsAndContinues(t *testing.T) {
	f := newFixture(t, Analysis{ConflictType: ConflictSoft}, nil, "more detail")
	writer := &artifact.Writer{Meta: artifact.Meta{ID: "prose"}}
	require.NoError(t, f.arts.Save(context.Background(), writer))
	f.arts.saves = 0

	missing := artifact.Key{Type: artifact.TypeWriter, ID: "ghost"}
	out := f.eng.EvolveAll(context.Background(), []artifact.Key{missing, artifact.KeyOf(writer), personaKey})
	require.Len(t, out, 3)
	assert.ErrorIs(t, out[0].Err, ErrNotFound)
	assert.ErrorIs(t, out[1].Err, ErrEmptyFeedback)
	require.NoError(t, out[2].Err)
	assert.False(t, out[2].Result.Paused)
	assert.Equal(t, 1, f.arts.saves)
}

func TestLLMAnalyzer_DecodesFencedJSON(t *testing.T) {
	mock := (&llm.Mock{}).Push("```json\n" + `{
  "thoughtProcess": "negates London",
  "conflictType": "hard",
  "forkRecommended": true,
  "violatedTruth": "lives in London",
  "suggestedForkName": "Madrid guide",
  "contradictoryTruths": [],
  "proposals": [{"text": "is from Madrid", "action": "add", "reasoning": "stated"}]
}` + "\n```")
	z := &LLMAnalyzer{Client: mock, Model: "m"}
	an, err := z.Analyze(context.Background(), guide(), []feedback.Entry{{Outcome: feedback.OutcomeFeedback, Text: "You are from Madrid"}})
	require.NoError(t, err)
	assert.Equal(t, ConflictHard, an.ConflictType)
	assert.Equal(t, "lives in London", an.ViolatedTruth)
	require.Len(t, an.Proposals, 1)
	assert.Equal(t, ActionAdd, an.Proposals[0].Action)

	prompt := mock.Calls()[0].Prompt
	assert.Contains(t, prompt, `"lives in London" weight 0.50`)
	assert.Contains(t, prompt, "Accent: British")
	assert.Contains(t, prompt, "You are from Madrid")
}

func TestDecodeAnalysis_RejectsUnknownValues(t *testing.T) {
	_, err := DecodeAnalysis(`{"conflictType":"medium"}`)
	assert.ErrorContains(t, err, "unknown conflictType")

	_, err = DecodeAnalysis(`{"conflictType":"soft","proposals":[{"text":"x","action":"delete"}]}`)
	assert.ErrorContains(t, err, "unknown action")

	an, err := DecodeAnalysis(`{}`)
	require.NoError(t, err)
	assert.Equal(t, ConflictNone, an.ConflictType)
}

func TestParsePolicy(t *testing.T) {
	an := Analysis{ConflictType: ConflictSoft, ContradictoryTruths: []string{"lives in London"}}

	p, ok := ParsePolicy(" Escalating ")
	require.True(t, ok)
	assert.Equal(t, ConflictHard, p.Classify(an))

	p, ok = ParsePolicy("")
	require.True(t, ok)
	assert.Equal(t, ConflictSoft, p.Classify(an))

	_, ok = ParsePolicy("coin")
	assert.False(t, ok)
}
