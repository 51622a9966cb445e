package importer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cordum/cordum-import/core/backup/command"
	"github.com/cordum/cordum-import/core/backup/manifest"
	"github.com/cordum/cordum-import/core/backup/report"
	"github.com/cordum/cordum-import/core/infra/logging"
)

// Sender delivers one command envelope. *command.Client implements it.
type Sender interface {
	Submit(ctx context.Context, name command.Name, version int, payload []byte) (command.Result, error)
}

// Submitter turns raw entry content into commands. It never retries and never
// returns an error: every problem becomes a failed Outcome.
type Submitter struct {
	sender            Sender
	meta              *manifest.Metadata
	honorFactsVersion bool
	factsWarn         sync.Once
}

// NewSubmitter binds a sender to the metadata of one run. Facts are sent with
// command.FactsBaselineVersion unless honorFactsVersion is set.
func NewSubmitter(sender Sender, meta *manifest.Metadata, honorFactsVersion bool) *Submitter {
	return &Submitter{sender: sender, meta: meta, honorFactsVersion: honorFactsVersion}
}

// SubmitCatalog sends a catalog document as is.
func (s *Submitter) SubmitCatalog(ctx context.Context, version int, raw []byte) Outcome {
	if !json.Valid(raw) {
		return invalidJSON(command.ReplaceCatalog, version, nil)
	}
	return s.send(ctx, command.ReplaceCatalog, version, raw)
}

// SubmitReport strips unrecognised resource event fields before sending.
func (s *Submitter) SubmitReport(ctx context.Context, version int, raw []byte) Outcome {
	clean, err := report.SanitizeJSON(raw)
	if err != nil {
		return invalidJSON(command.StoreReport, version, err)
	}
	return s.send(ctx, command.StoreReport, version, clean)
}

// SubmitFacts sends a facts document with the facts version in effect.
func (s *Submitter) SubmitFacts(ctx context.Context, raw []byte) Outcome {
	version := s.FactsVersion()
	if !json.Valid(raw) {
		return invalidJSON(command.ReplaceFacts, version, nil)
	}
	return s.send(ctx, command.ReplaceFacts, version, raw)
}

// FactsVersion returns the version facts are submitted with. A manifest
// version that differs from the baseline is logged once.
func (s *Submitter) FactsVersion() int {
	v, ok := s.meta.Version(command.ReplaceFacts)
	if !ok || v == command.FactsBaselineVersion {
		return command.FactsBaselineVersion
	}
	if s.honorFactsVersion {
		return v
	}
	s.factsWarn.Do(func() {
		logging.Warn("submitter", "export metadata facts version ignored",
			"manifest_version", v,
			"submitted_version", command.FactsBaselineVersion,
			"hint", "use --honor-facts-version to submit the manifest version")
	})
	return command.FactsBaselineVersion
}

func (s *Submitter) send(ctx context.Context, name command.Name, version int, payload []byte) Outcome {
	out := Outcome{Command: name, Version: version}
	if err := command.ValidateVersion(name, version); err != nil {
		out.Status, out.Reason, out.Err = StatusFailed, ReasonInvalidRequest, err
		return out
	}
	start := time.Now()
	res, err := s.sender.Submit(ctx, name, version, payload)
	out.Duration = time.Since(start)
	out.Result = res
	switch {
	case err != nil:
		out.Status, out.Reason, out.Err = StatusFailed, ReasonTransport, err
	case !res.OK():
		out.Status, out.Reason, out.Err = StatusFailed, ReasonRejected, res.AsHTTPError()
	default:
		out.Status = StatusOK
	}
	return out
}

func invalidJSON(name command.Name, version int, err error) Outcome {
	return Outcome{Command: name, Version: version, Status: StatusFailed, Reason: ReasonInvalidJSON, Err: err}
}
