package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/evolution"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/metrics"
	"github.com/danmt/hub-spoke-cm-sub000/workspace"
)

type stubAnalyzer struct {
	an  evolution.Analysis
	err error
}

func (s *stubAnalyzer) Analyze(context.Context, artifact.Artifact, []feedback.Entry) (evolution.Analysis, error) {
	return s.an, s.err
}

// flakyArtifacts fails saves while err is set.
type flakyArtifacts struct {
	*workspace.Workspace
	err error
}

func (f *flakyArtifacts) Save(ctx context.Context, a artifact.Artifact) error {
	if f.err != nil {
		return f.err
	}
	return f.Workspace.Save(ctx, a)
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(context.Context, artifact.Artifact) (string, error) {
	return "A tour guide.", nil
}

type harness struct {
	ws   *workspace.Workspace
	arts *flakyArtifacts
	fb   *feedback.JSONLStore
	an   *stubAnalyzer
	srv  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ws, err := workspace.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Save(context.Background(), &artifact.Persona{
		Meta: artifact.Meta{
			ID:      "guide",
			Content: "Speak about your city.",
			Truths:  []artifact.Truth{{Text: "lives in London", Weight: 0.5}},
		},
		Name: "Edith", Language: "English",
	}))
	h := &harness{
		ws:   ws,
		arts: &flakyArtifacts{Workspace: ws},
		fb:   feedback.NewJSONLStore(ws.AgentsRoot()),
		an:   &stubAnalyzer{},
	}
	rec := metrics.New()
	eng, err := evolution.New(evolution.Config{
		Artifacts: h.arts, Feedback: h.fb, Analyzer: h.an, Summarizer: stubSummarizer{}, Metrics: rec,
	})
	require.NoError(t, err)
	s, err := New(Deps{
		Artifacts: ws, Feedback: h.fb, Engine: eng, Metrics: rec,
		Now: func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	h.srv = httptest.NewServer(s.Routes())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (int, map[string]any, string) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, string(raw)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	code, obj, _ := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", obj["status"])
}

func TestFeedback_AddAndList(t *testing.T) {
	h := newHarness(t)
	code, obj, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"  more pubs  "}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "manual", obj["source"])
	assert.Equal(t, "more pubs", obj["text"])

	code, _, raw := h.do(t, http.MethodGet, "/api/agents/persona/guide/feedback", "")
	require.Equal(t, http.StatusOK, code)
	var entries []feedback.Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, feedback.OutcomeFeedback, entries[0].Outcome)

	code, _, raw = h.do(t, http.MethodGet, "/api/agents", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, `"pendingFeedback":1`)
}

func TestFeedback_Rejects(t *testing.T) {
	h := newHarness(t)
	code, _, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _, _ = h.do(t, http.MethodPost, "/api/agents/persona/ghost/feedback", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, code)
	code, _, _ = h.do(t, http.MethodGet, "/api/agents/robot/guide/feedback", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEvolve_EmptyBuffer(t *testing.T) {
	h := newHarness(t)
	code, obj, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/evolve", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, obj["error"], "empty")
}

func TestEvolve_SoftApplies(t *testing.T) {
	h := newHarness(t)
	h.an.an = evolution.Analysis{
		ConflictType: evolution.ConflictSoft,
		Proposals:    []evolution.Proposal{{Text: "mentions hidden pubs", Action: evolution.ActionAdd}},
	}
	_, _, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"pubs"}`)

	code, obj, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/evolve", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "soft", obj["conflict"])
	assert.Equal(t, false, obj["paused"])

	got, err := h.ws.Load(context.Background(), artifact.Key{Type: artifact.TypePersona, ID: "guide"})
	require.NoError(t, err)
	assert.Len(t, got.Base().Truths, 2)
	assert.Equal(t, "A tour guide.", got.Base().Description)

	_, _, raw := h.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, raw, `hubspoke_evolutions_total{conflict="soft"} 1`)
}

func TestEvolve_HardPausesThenFork(t *testing.T) {
	h := newHarness(t)
	h.an.an = evolution.Analysis{
		ConflictType:      evolution.ConflictHard,
		ViolatedTruth:     "lives in London",
		SuggestedForkName: "Madrid guide",
		Proposals:         []evolution.Proposal{{Text: "is from Madrid", Action: evolution.ActionAdd}},
	}
	_, _, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"you are from Madrid"}`)

	code, _, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/fork", "")
	assert.Equal(t, http.StatusConflict, code, "fork before evolve")

	code, obj, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/evolve", "")
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, true, obj["paused"])

	_, _, raw := h.do(t, http.MethodGet, "/api/agents", "")
	assert.Contains(t, raw, `"paused":true`)

	code, obj, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/fork", `{}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "madrid-guide", obj["id"])

	fork, err := h.ws.Load(context.Background(), artifact.Key{Type: artifact.TypePersona, ID: "madrid-guide"})
	require.NoError(t, err)
	assert.Equal(t, []artifact.Truth{{Text: "is from Madrid", Weight: evolution.InitialWeight}}, fork.Base().Truths)

	entries, err := h.fb.Load(context.Background(), feedback.Key{Type: "persona", ID: "guide"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiscard(t *testing.T) {
	h := newHarness(t)
	_, _, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"noise"}`)
	code, _, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/discard", "")
	assert.Equal(t, http.StatusNoContent, code)
	entries, err := h.fb.Load(context.Background(), feedback.Key{Type: "persona", ID: "guide"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEvolve_ErrorStatus(t *testing.T) {
	h := newHarness(t)
	_, _, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"pubs"}`)

	h.an.err = errors.New("upstream timeout")
	code, obj, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/evolve", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, obj["error"], "upstream timeout")

	h.an.err = nil
	h.an.an = evolution.Analysis{ConflictType: evolution.ConflictSoft}
	h.arts.err = errors.New("disk full")
	code, obj, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/evolve", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, obj["error"], "disk full")

	entries, err := h.fb.Load(context.Background(), feedback.Key{Type: "persona", ID: "guide"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFork_ChunkedEmptyBodyUsesSuggestedName(t *testing.T) {
	h := newHarness(t)
	h.an.an = evolution.Analysis{
		ConflictType:      evolution.ConflictHard,
		ViolatedTruth:     "lives in London",
		SuggestedForkName: "Madrid guide",
	}
	_, _, _ = h.do(t, http.MethodPost, "/api/agents/persona/guide/feedback", `{"text":"you are from Madrid"}`)
	code, _, _ := h.do(t, http.MethodPost, "/api/agents/persona/guide/evolve", "")
	require.Equal(t, http.StatusConflict, code)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/agents/persona/guide/fork", io.NopCloser(strings.NewReader("")))
	require.NoError(t, err)
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var obj map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&obj))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "madrid-guide", obj["id"])
}
