package importer

import (
	"context"

	"github.com/cordum/cordum-import/core/backup/command"
	"github.com/cordum/cordum-import/core/infra/bus"
	"github.com/cordum/cordum-import/core/infra/failures"
	"github.com/cordum/cordum-import/core/infra/logging"
	"github.com/cordum/cordum-import/core/infra/metrics"
)

// maxStoredBody caps the response body kept in the failure ledger.
const maxStoredBody = 4 << 10

// Recorder observes every outcome of a run. Recorders must not fail the run.
type Recorder interface {
	Record(ctx context.Context, runID string, o Outcome)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, runID string, o Outcome)

func (f RecorderFunc) Record(ctx context.Context, runID string, o Outcome) {
	f(ctx, runID, o)
}

// Recorders fans an outcome out in order.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, runID string, o Outcome) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, runID, o)
		}
	}
}

// LogRecorder logs failures with the full endpoint response, flattened onto one
// line, and successes at info level.
func LogRecorder() Recorder {
	return RecorderFunc(func(_ context.Context, runID string, o Outcome) {
		switch o.Status {
		case StatusOK:
			logging.Info("importer", "submitted", "run", runID, "path", o.Path, "command", o.Command, "version", o.Version)
		case StatusSkipped:
			logging.Info("importer", "skipped", "run", runID, "path", o.Path, "reason", o.Reason)
		case StatusFailed:
			kv := []any{"run", runID, "path", o.Path, "command", o.Command, "version", o.Version, "reason", o.Reason}
			if o.Err != nil {
				kv = append(kv, "error", o.Err)
			}
			if o.Result.Status != 0 {
				kv = append(kv, "status", o.Result.Status, "body", o.Result.Body)
			}
			logging.Error("importer", "submission failed", kv...)
		}
	})
}

// MetricsRecorder counts entries per category and submissions per outcome.
func MetricsRecorder(m metrics.Metrics) Recorder {
	if m == nil {
		m = metrics.Noop{}
	}
	return RecorderFunc(func(_ context.Context, _ string, o Outcome) {
		m.IncEntries(string(o.Category))
		if o.Command == "" || o.Status == StatusSkipped {
			return
		}
		m.IncSubmissions(string(o.Command), string(o.Status))
		if o.Duration > 0 {
			m.ObserveSubmission(string(o.Command), o.Duration.Seconds())
		}
	})
}

// FailureStore persists failed entries. *failures.Ledger implements it.
type FailureStore interface {
	Add(ctx context.Context, entry failures.Entry) error
}

// LedgerRecorder stores failed outcomes for inspection after the run.
func LedgerRecorder(store FailureStore) Recorder {
	return RecorderFunc(func(ctx context.Context, runID string, o Outcome) {
		if !o.Failed() {
			return
		}
		entry := failures.Entry{
			RunID:    runID,
			Path:     o.Path,
			Category: string(o.Category),
			Command:  string(o.Command),
			Version:  o.Version,
			Status:   o.Result.Status,
			Reason:   o.Reason,
			Body:     truncate(o.Result.Body, maxStoredBody),
		}
		if o.Err != nil && o.Result.Status == 0 {
			entry.Body = o.Err.Error()
		}
		if err := store.Add(ctx, entry); err != nil {
			logging.Warn("importer", "failure ledger write failed", "run", runID, "path", o.Path, "error", err)
		}
	})
}

// Publisher sends JSON events. *bus.NatsBus implements it.
type Publisher interface {
	PublishJSON(subject, msgID string, v any) error
}

// Event is the message published for every outcome.
type Event struct {
	RunID      string       `json:"run_id"`
	Path       string       `json:"path"`
	Category   Category     `json:"category"`
	Command    command.Name `json:"command,omitempty"`
	Version    int          `json:"version,omitempty"`
	Status     Status       `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	HTTPStatus int          `json:"http_status,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// NewEvent converts an outcome into its published form.
func NewEvent(runID string, o Outcome) Event {
	ev := Event{
		RunID:      runID,
		Path:       o.Path,
		Category:   o.Category,
		Command:    o.Command,
		Version:    o.Version,
		Status:     o.Status,
		Reason:     o.Reason,
		HTTPStatus: o.Result.Status,
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	return ev
}

// EventRecorder publishes one event per outcome on subject.
func EventRecorder(pub Publisher, subject string) Recorder {
	return RecorderFunc(func(_ context.Context, runID string, o Outcome) {
		if err := pub.PublishJSON(subject, bus.MessageID(runID, o.Path), NewEvent(runID, o)); err != nil {
			logging.Warn("importer", "result event publish failed", "run", runID, "path", o.Path, "error", err)
		}
	})
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
