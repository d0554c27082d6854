// Package server exposes agent feedback and evolution over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/evolution"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/metrics"
)

// Artifacts is the slice of the workspace the API needs.
type Artifacts interface {
	evolution.ArtifactStore
	Artifacts(ctx context.Context) ([]artifact.Artifact, error)
}

type Deps struct {
	Artifacts Artifacts
	Feedback  feedback.Store
	Engine    *evolution.Engine
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

type Server struct {
	artifacts Artifacts
	feedback  feedback.Store
	engine    *evolution.Engine
	metrics   *metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
	paused    *pausedStore
}

// pausedStore keeps hard-conflict results until they are forked or
// discarded.
type pausedStore struct {
	mu      sync.Mutex
	results map[artifact.Key]*evolution.Result
}

func newPausedStore() *pausedStore {
	return &pausedStore{results: make(map[artifact.Key]*evolution.Result)}
}

func (s *pausedStore) set(res *evolution.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.Key] = res
}

func (s *pausedStore) get(key artifact.Key) (*evolution.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[key]
	return res, ok
}

func (s *pausedStore) drop(key artifact.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, key)
}

func New(d Deps) (*Server, error) {
	switch {
	case d.Artifacts == nil:
		return nil, errors.New("server: artifact store required")
	case d.Feedback == nil:
		return nil, errors.New("server: feedback store required")
	case d.Engine == nil:
		return nil, errors.New("server: evolution engine required")
	}
	s := &Server{
		artifacts: d.Artifacts,
		feedback:  d.Feedback,
		engine:    d.Engine,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		paused:    newPausedStore(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/agents", func(r chi.Router) {
		r.Get("/", s.handleAgents)
		r.Route("/{type}/{id}", func(r chi.Router) {
			r.Get("/feedback", s.handleFeedbackList)
			r.Post("/feedback", s.handleFeedbackAdd)
			r.Post("/evolve", s.handleEvolve)
			r.Post("/fork", s.handleFork)
			r.Post("/discard", s.handleDiscard)
		})
	})
	return r
}

// --- Handlers ---

type agentResp struct {
	Type        artifact.Type    `json:"type"`
	ID          string           `json:"id"`
	Description string           `json:"description,omitempty"`
	Truths      []artifact.Truth `json:"truths"`
	Pending     int              `json:"pendingFeedback"`
	Paused      bool             `json:"paused"`
}

type feedbackReq struct {
	Text string `json:"text"`
}

type forkReq struct {
	Name string `json:"name"`
}

type evolveResp struct {
	Type        artifact.Type      `json:"type"`
	ID          string             `json:"id"`
	Conflict    string             `json:"conflict"`
	Paused      bool               `json:"paused"`
	Consumed    int                `json:"consumed"`
	Analysis    evolution.Analysis `json:"analysis"`
	Truths      []artifact.Truth   `json:"truths"`
	Description string             `json:"description,omitempty"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	arts, err := s.artifacts.Artifacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]agentResp, 0, len(arts))
	for _, a := range arts {
		key := artifact.KeyOf(a)
		entries, err := s.feedback.Load(r.Context(), feedback.KeyFor(key))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		_, paused := s.paused.get(key)
		m := a.Base()
		out = append(out, agentResp{
			Type:        key.Type,
			ID:          key.ID,
			Description: m.Description,
			Truths:      artifact.SortedTruths(m.Truths),
			Pending:     len(entries),
			Paused:      paused,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
	key, ok := s.resolve(w, r)
	if !ok {
		return
	}
	entries, err := s.feedback.Load(r.Context(), feedback.KeyFor(key))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []feedback.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFeedbackAdd(w http.ResponseWriter, r *http.Request) {
	key, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var req feedbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	e := feedback.Entry{
		Timestamp: s.now().UTC(),
		Source:    feedback.SourceManual,
		Outcome:   feedback.OutcomeFeedback,
		Text:      text,
	}
	if err := s.feedback.Append(r.Context(), feedback.KeyFor(key), e); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleEvolve(w http.ResponseWriter, r *http.Request) {
	key, ok := s.resolve(w, r)
	if !ok {
		return
	}
	res, err := s.engine.Evolve(r.Context(), key)
	var callErr *evolution.CallError
	switch {
	case errors.Is(err, evolution.ErrEmptyFeedback):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case errors.Is(err, evolution.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.As(err, &callErr):
		writeError(w, http.StatusBadGateway, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if res.Paused {
		s.paused.set(res)
		status = http.StatusConflict
	} else {
		s.paused.drop(key)
	}
	writeJSON(w, status, toEvolveResp(res))
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	key, ok := s.resolve(w, r)
	if !ok {
		return
	}
	res, ok := s.paused.get(key)
	if !ok {
		writeError(w, http.StatusConflict, errors.New("no paused evolution for "+key.String()))
		return
	}
	// An empty body, chunked or not, keeps the suggested name.
	var req forkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fork, err := s.engine.Fork(r.Context(), res, req.Name)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	s.paused.drop(key)
	m := fork.Base()
	writeJSON(w, http.StatusCreated, agentResp{
		Type:        fork.Type(),
		ID:          m.ID,
		Description: m.Description,
		Truths:      artifact.SortedTruths(m.Truths),
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	key, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if err := s.engine.Discard(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.paused.drop(key)
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// resolve reads the agent key from the path and checks it exists.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (artifact.Key, bool) {
	t, err := artifact.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return artifact.Key{}, false
	}
	key := artifact.Key{Type: t, ID: chi.URLParam(r, "id")}
	if _, err := s.artifacts.Load(r.Context(), key); err != nil {
		writeError(w, http.StatusNotFound, err)
		return artifact.Key{}, false
	}
	return key, true
}

func toEvolveResp(res *evolution.Result) evolveResp {
	return evolveResp{
		Type:        res.Key.Type,
		ID:          res.Key.ID,
		Conflict:    string(res.Conflict),
		Paused:      res.Paused,
		Consumed:    res.Consumed,
		Analysis:    res.Analysis,
		Truths:      artifact.SortedTruths(res.ProposedTruths()),
		Description: res.ProposedDescription(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start))
	})
}
