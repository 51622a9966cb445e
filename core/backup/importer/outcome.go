package importer

import (
	"fmt"
	"time"

	"github.com/cordum/cordum-import/core/backup/command"
)

// Status is the result of handling one archive entry.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Short failure and skip reasons.
const (
	ReasonUnrecognized   = "unrecognized path"
	ReasonInvalidJSON    = "invalid json"
	ReasonMissingVersion = "missing version"
	ReasonTooLarge       = "entry too large"
	ReasonRejected       = "rejected"
	ReasonTransport      = "transport error"
	ReasonInvalidRequest = "invalid request"
)

// Outcome describes what happened to one archive entry.
type Outcome struct {
	Path     string
	Category Category
	Command  command.Name
	Version  int
	Status   Status
	Reason   string
	Err      error
	Result   command.Result
	Duration time.Duration
}

// Failed reports whether the entry could not be submitted.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	RunID     string
	Archive   string
	Entries   int
	Submitted int
	Skipped   int
	Failed    int
	Failures  []Outcome
}

func (s *Summary) add(o Outcome) {
	s.Entries++
	switch o.Status {
	case StatusOK:
		s.Submitted++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, o)
	}
}

func (s *Summary) String() string {
	return fmt.Sprintf("run=%s entries=%d submitted=%d skipped=%d failed=%d",
		s.RunID, s.Entries, s.Submitted, s.Skipped, s.Failed)
}
