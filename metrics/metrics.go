// Package metrics exposes pipeline counters through Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmt/hub-spoke-cm-sub000/llm"
)

const namespace = "hubspoke"

// Recorder owns a private registry. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	reg         *prometheus.Registry
	completions *prometheus.CounterVec
	latency     prometheus.Histogram
	retries     *prometheus.CounterVec
	reviews     *prometheus.CounterVec
	sections    prometheus.Counter
	evolutions  *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion calls by status.",
		}, []string{"status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion call latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries granted after a failed generation, by agent.",
		}, []string{"agent"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Human review decisions by agent and outcome.",
		}, []string{"agent", "outcome"}),
		sections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_filled_total",
			Help:      "Hub sections written and rephrased.",
		}),
		evolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evolutions_total",
			Help:      "Evolution cycles by conflict type.",
		}, []string{"conflict"}),
	}
	r.reg.MustRegister(r.completions, r.latency, r.retries, r.reviews, r.sections, r.evolutions)
	return r
}

// Registry is exposed for tests and for callers that add their own
// collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Completion(err error, took time.Duration) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.completions.WithLabelValues(status).Inc()
	r.latency.Observe(took.Seconds())
}

func (r *Recorder) Retry(agent string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(agent).Inc()
}

func (r *Recorder) Review(agent, outcome string) {
	if r == nil {
		return
	}
	r.reviews.WithLabelValues(agent, outcome).Inc()
}

func (r *Recorder) SectionFilled() {
	if r == nil {
		return
	}
	r.sections.Inc()
}

func (r *Recorder) Evolution(conflict string) {
	if r == nil {
		return
	}
	r.evolutions.WithLabelValues(conflict).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteTextfile dumps the registry for the node_exporter textfile
// collector. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}

// InstrumentClient wraps an llm.Client so every call is counted and timed.
func InstrumentClient(next llm.Client, r *Recorder) llm.Client {
	if r == nil {
		return next
	}
	return &instrumented{next: next, rec: r}
}

type instrumented struct {
	next llm.Client
	rec  *Recorder
}

func (c *instrumented) Execute(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	start := time.Now()
	out, err := c.next.Execute(ctx, prompt, opts)
	c.rec.Completion(err, time.Since(start))
	return out, err
}
