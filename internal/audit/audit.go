// Package audit records who anonymized which record with which plan.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

// Actions.
const (
	ActionAnonymize = "anonymize"
	ActionDryRun    = "dry_run"
	ActionSession   = "session_anonymize"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one audit record.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Action     string           `json:"action"`
	Source     string           `json:"source"`
	Output     string           `json:"output,omitempty"`
	Plan       *anonymizer.Plan `json:"plan,omitempty"`
	Outcome    string           `json:"outcome"`
	Error      string           `json:"error,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// NewEvent fills in the ID, timestamp and outcome from err.
func NewEvent(action, source string, plan *anonymizer.Plan, err error) Event {
	e := Event{
		ID:         uuid.New(),
		Action:     action,
		Source:     source,
		Plan:       plan,
		Outcome:    OutcomeSuccess,
		RecordedAt: time.Now().UTC(),
	}
	if err != nil {
		e.Outcome = OutcomeFailure
		e.Error = err.Error()
	}
	return e
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// RecorderFunc is a function adapter for Recorder.
type RecorderFunc func(ctx context.Context, e Event) error

func (f RecorderFunc) Record(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Nop discards events.
var Nop Recorder = RecorderFunc(func(context.Context, Event) error { return nil })

// LogRecorder writes events as structured log lines.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.With().Str("component", "audit").Logger()}
}

func (r *LogRecorder) Record(_ context.Context, e Event) error {
	evt := r.logger.Info()
	if e.Outcome == OutcomeFailure {
		evt = r.logger.Warn()
	}
	evt = evt.
		Str("audit_id", e.ID.String()).
		Str("action", e.Action).
		Str("source", e.Source).
		Str("outcome", e.Outcome).
		Time("recorded_at", e.RecordedAt)
	if e.Output != "" {
		evt = evt.Str("output", e.Output)
	}
	if e.Actor != "" {
		evt = evt.Str("actor", e.Actor)
	}
	if e.Plan != nil {
		evt = evt.
			Str("patient_name", e.Plan.PatientName.Kind().String()).
			Str("patient_birth_day", e.Plan.PatientBirthDate.Kind().String()).
			Str("patient_sex", e.Plan.PatientSex.Kind().String()).
			Int("remove_tags", len(e.Plan.RemoveTags))
	}
	if e.Error != "" {
		evt = evt.Str("error", e.Error)
	}
	evt.Msg("anonymization audit")
	return nil
}

// Multi fans an event out to several recorders and returns the first error.
func Multi(recorders ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, e Event) error {
		var first error
		for _, r := range recorders {
			if err := r.Record(ctx, e); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// Emit records e and logs, rather than returns, a recording failure. An audit
// outage never fails an anonymization run.
func Emit(ctx context.Context, r Recorder, logger zerolog.Logger, e Event) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, e); err != nil {
		logger.Error().Err(err).Str("audit_id", e.ID.String()).Msg("failed to record audit event")
	}
}
