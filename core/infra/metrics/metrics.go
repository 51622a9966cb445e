package metrics

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics counts what an import run did.
type Metrics interface {
	IncEntries(category string)
	IncSubmissions(command, outcome string)
	ObserveSubmission(command string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncEntries(string)                 {}
func (Noop) IncSubmissions(string, string)     {}
func (Noop) ObserveSubmission(string, float64) {}

// Prom implements Metrics on a private Prometheus registry so a short-lived
// run can push its counters when it finishes.
type Prom struct {
	registry    *prometheus.Registry
	entries     *prometheus.CounterVec
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	once        sync.Once
}

// NewProm constructs import metrics under namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_entries_total",
			Help:      "Archive entries seen by category",
		}, []string{"category"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_submissions_total",
			Help:      "Command submissions by command and outcome",
		}, []string{"command", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_submission_duration_seconds",
			Help:      "Command submission latency by command",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		p.registry.MustRegister(p.entries, p.submissions, p.latency)
	})
}

func (p *Prom) IncEntries(category string) {
	p.entries.WithLabelValues(category).Inc()
}

func (p *Prom) IncSubmissions(command, outcome string) {
	p.submissions.WithLabelValues(command, outcome).Inc()
}

func (p *Prom) ObserveSubmission(command string, durationSeconds float64) {
	p.latency.WithLabelValues(command).Observe(durationSeconds)
}

// Gatherer exposes the private registry.
func (p *Prom) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Push sends the current values to a Prometheus Pushgateway, replacing the
// previous push for the same job and grouping labels.
func (p *Prom) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return errors.New("pushgateway url required")
	}
	if job == "" {
		return errors.New("pushgateway job required")
	}
	pusher := push.New(url, job).Gatherer(p.registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	return pusher.PushContext(ctx)
}
