// Package runner executes anonymization runs against files on disk.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/dicomstore"
	"github.com/ehr/dicom-tools/internal/metrics"
	"github.com/ehr/dicom-tools/internal/planner"
)

var ErrConflictingDocuments = errors.New("a config file and a stored preset cannot be combined")

// Record is an opened file the runner can edit and save.
type Record interface {
	anonymizer.Store
	Save(path string) (int64, error)
}

// Opener opens the input file of a run.
type Opener func(path string) (Record, error)

// OpenDICOM checks the DICM marker and parses the file.
func OpenDICOM(path string) (Record, error) {
	if err := dicomstore.ValidateInput(path); err != nil {
		return nil, err
	}
	return dicomstore.Open(path)
}

// Request describes one run.
type Request struct {
	Input string
	// Output is where the anonymized file is written. Empty means the result
	// is computed but not saved.
	Output string
	DryRun bool

	Overrides planner.Overrides
	// ConfigPath and Preset name a config document; at most one may be set.
	ConfigPath string
	Preset     string

	Actor string
}

// Result reports what a run did.
type Result struct {
	Input        string                   `json:"input"`
	Output       string                   `json:"output,omitempty"`
	Plan         anonymizer.Plan          `json:"plan"`
	Changes      []anonymizer.FieldChange `json:"changes"`
	Applied      anonymizer.Result        `json:"applied"`
	BytesIn      int64                    `json:"bytes_in"`
	BytesWritten int64                    `json:"bytes_written"`
	Saved        bool                     `json:"saved"`
	Duration     time.Duration            `json:"duration"`
}

// Runner wires plan building, the record store, audit and metrics together.
type Runner struct {
	logger   zerolog.Logger
	open     Opener
	presets  planner.DocumentSource
	recorder audit.Recorder
	metrics  *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

func WithOpener(open Opener) Option { return func(r *Runner) { r.open = open } }

func WithPresets(src planner.DocumentSource) Option { return func(r *Runner) { r.presets = src } }

func WithRecorder(rec audit.Recorder) Option { return func(r *Runner) { r.recorder = rec } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

func New(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger.With().Str("component", "runner").Logger(),
		open:     OpenDICOM,
		recorder: audit.Nop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Builder returns a fresh plan builder for req with its config document, if
// any, already merged.
func (r *Runner) Builder(ctx context.Context, req Request) (*planner.Builder, error) {
	switch {
	case req.ConfigPath != "" && req.Preset != "":
		return nil, ErrConflictingDocuments
	case req.ConfigPath != "":
		return planner.FromDocumentFile(req.ConfigPath, req.Overrides)
	case req.Preset != "":
		if r.presets == nil {
			return nil, fmt.Errorf("preset %q: no preset store configured", req.Preset)
		}
		return planner.FromPreset(ctx, r.presets, req.Preset, req.Overrides)
	}
	return planner.NewFromOverrides(req.Overrides), nil
}

// Run executes one request. The plan is built before the input is opened, so
// a bad config document never touches the record.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := r.run(ctx, req)

	action := audit.ActionAnonymize
	outcome := metrics.OutcomeApplied
	if req.DryRun {
		action = audit.ActionDryRun
		outcome = metrics.OutcomeDryRun
	}
	if err != nil {
		outcome = metrics.OutcomeFailed
	}

	var plan *anonymizer.Plan
	if res != nil {
		res.Duration = time.Since(start)
		plan = &res.Plan
	}
	event := audit.NewEvent(action, req.Input, plan, err)
	event.Output = req.Output
	event.Actor = req.Actor
	audit.Emit(ctx, r.recorder, r.logger, event)

	if r.metrics != nil {
		var changed, removed int
		if res != nil {
			changed, removed = len(res.Applied.Changed), len(res.Applied.Removed)
			r.metrics.AddBytesWritten(res.BytesWritten)
		}
		r.metrics.ObserveRun(outcome, start, changed, removed)
	}

	if err != nil {
		r.logger.Error().Err(err).Str("input", req.Input).Msg("anonymization failed")
		return nil, err
	}
	r.logger.Info().
		Str("input", req.Input).
		Str("output", res.Output).
		Bool("saved", res.Saved).
		Int("changed", len(res.Applied.Changed)).
		Int("removed", len(res.Applied.Removed)).
		Dur("duration", res.Duration).
		Msg("anonymization finished")
	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Output != "" {
		if err := dicomstore.ValidateOutput(req.Output); err != nil {
			return nil, err
		}
	}

	b, err := r.Builder(ctx, req)
	if err != nil {
		return nil, err
	}
	plan, err := b.Build()
	if err != nil {
		return nil, err
	}

	res := &Result{Input: req.Input, Plan: plan}
	if info, err := os.Stat(req.Input); err == nil {
		res.BytesIn = info.Size()
	}

	rec, err := r.open(req.Input)
	if err != nil {
		return res, err
	}

	if res.Changes, err = anonymizer.Preview(plan, rec); err != nil {
		return res, err
	}
	if res.Applied, err = anonymizer.Apply(plan, rec); err != nil {
		return res, err
	}

	if req.DryRun || req.Output == "" {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	n, err := rec.Save(req.Output)
	if err != nil {
		return res, err
	}
	res.Output = req.Output
	res.BytesWritten = n
	res.Saved = true
	return res, nil
}
