// Package importer replays an export archive against the command endpoint.
// Entries are handled one at a time in archive order; a failed entry is
// recorded and the run continues with the next one.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/cordum/cordum-import/core/backup/archive"
	"github.com/cordum/cordum-import/core/backup/manifest"
	"github.com/cordum/cordum-import/core/infra/logging"
)

// Options tune a run. The zero value imports from the default export root
// with default archive limits and logs every outcome.
type Options struct {
	Root              string
	HonorFactsVersion bool
	Limits            archive.Limits
	Recorder          Recorder
	// RunID identifies the run in logs, the failure ledger and events.
	// A random id is generated when empty.
	RunID string
}

// Importer drives one or more import runs through a Sender.
type Importer struct {
	sender Sender
	opts   Options
}

// New builds an importer.
func New(sender Sender, opts Options) (*Importer, error) {
	if sender == nil {
		return nil, errors.New("sender required")
	}
	if opts.Root == "" {
		opts.Root = manifest.DefaultRoot
	}
	if opts.Limits == (archive.Limits{}) {
		opts.Limits = archive.DefaultLimits()
	}
	if opts.Recorder == nil {
		opts.Recorder = LogRecorder()
	}
	return &Importer{sender: sender, opts: opts}, nil
}

// Run imports the archive at archivePath. A missing or unreadable manifest
// stops the run before anything is submitted. A read error in the middle of
// the archive is returned together with the summary of what was handled.
func (im *Importer) Run(ctx context.Context, archivePath string) (*Summary, error) {
	runID := im.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	meta, err := manifest.Read(archivePath, im.opts.Root)
	if err != nil {
		return nil, err
	}
	logging.Info("importer", "import started",
		"run", runID,
		"archive", archivePath,
		"exported_at", meta.Timestamp,
		"exporter_version", meta.ExporterVersion)
	if unknown := meta.Unknown(); len(unknown) > 0 {
		logging.Warn("importer", "export metadata lists unsupported commands", "commands", strings.Join(unknown, ","))
	}

	r, err := archive.OpenWithLimits(archivePath, im.opts.Limits)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	d := &dispatcher{
		classifier: NewClassifier(im.opts.Root),
		submitter:  NewSubmitter(im.sender, meta, im.opts.HonorFactsVersion),
		meta:       meta,
	}
	summary := &Summary{RunID: runID, Archive: archivePath}
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil && !errors.Is(err, archive.ErrEntryTooLarge) {
			logging.Error("importer", "archive read failed", "run", runID, "error", err)
			return summary, fmt.Errorf("import %s: %w", archivePath, err)
		}
		o := d.dispatch(ctx, entry, err)
		summary.add(o)
		im.opts.Recorder.Record(ctx, runID, o)
	}
	logging.Info("importer", "import finished",
		"run", runID,
		"entries", summary.Entries,
		"submitted", summary.Submitted,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return summary, nil
}

type dispatcher struct {
	classifier *Classifier
	submitter  *Submitter
	meta       *manifest.Metadata
}

func (d *dispatcher) dispatch(ctx context.Context, entry *archive.Entry, entryErr error) Outcome {
	category := d.classifier.Classify(entry.Path)
	o := d.route(ctx, category, entry, entryErr)
	o.Path = entry.Path
	o.Category = category
	return o
}

func (d *dispatcher) route(ctx context.Context, category Category, entry *archive.Entry, entryErr error) Outcome {
	if category == Unrecognized {
		return Outcome{Status: StatusSkipped, Reason: ReasonUnrecognized}
	}
	name, _ := category.Command()
	if entryErr != nil {
		return Outcome{Command: name, Status: StatusFailed, Reason: ReasonTooLarge, Err: entryErr}
	}
	if category == Facts {
		return d.submitter.SubmitFacts(ctx, entry.Content)
	}
	version, ok := d.meta.Version(name)
	if !ok {
		return Outcome{
			Command: name,
			Status:  StatusFailed,
			Reason:  ReasonMissingVersion,
			Err:     fmt.Errorf("export metadata has no version for %s", name),
		}
	}
	if category == Catalog {
		return d.submitter.SubmitCatalog(ctx, version, entry.Content)
	}
	return d.submitter.SubmitReport(ctx, version, entry.Content)
}
