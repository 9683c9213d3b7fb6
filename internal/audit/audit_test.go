package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

func TestNewEvent(t *testing.T) {
	plan := &anonymizer.Plan{Fields: anonymizer.Fields{PatientName: anonymizer.Change("X")}}

	ok := NewEvent(ActionAnonymize, "in.dcm", plan, nil)
	assert.Equal(t, OutcomeSuccess, ok.Outcome)
	assert.Empty(t, ok.Error)
	assert.NotEqual(t, ok.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, ok.RecordedAt.IsZero())

	failed := NewEvent(ActionAnonymize, "in.dcm", nil, errors.New("boom"))
	assert.Equal(t, OutcomeFailure, failed.Outcome)
	assert.Equal(t, "boom", failed.Error)
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogRecorder(zerolog.New(&buf))

	plan := &anonymizer.Plan{
		Fields:     anonymizer.Fields{PatientSex: anonymizer.Remove[anonymizer.PatientSex]()},
		RemoveTags: []anonymizer.Address{{Group: 0x0010, Element: 0x1000}},
	}
	e := NewEvent(ActionAnonymize, "in.dcm", plan, nil)
	e.Output = "out.dcm"
	e.Actor = "alice"
	require.NoError(t, r.Record(context.Background(), e))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "audit", line["component"])
	assert.Equal(t, "in.dcm", line["source"])
	assert.Equal(t, "out.dcm", line["output"])
	assert.Equal(t, "alice", line["actor"])
	assert.Equal(t, "remove", line["patient_sex"])
	assert.Equal(t, "keep", line["patient_name"])
	assert.Equal(t, float64(1), line["remove_tags"])
}

func TestLogRecorder_FailureIsWarn(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogRecorder(zerolog.New(&buf))
	require.NoError(t, r.Record(context.Background(), NewEvent(ActionSession, "s1", nil, errors.New("bad"))))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "bad", line["error"])
}

func TestMulti(t *testing.T) {
	var calls []string
	first := RecorderFunc(func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("db down")
	})
	second := RecorderFunc(func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})

	err := Multi(first, second).Record(context.Background(), Event{})
	assert.EqualError(t, err, "db down")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestEmit_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	failing := RecorderFunc(func(context.Context, Event) error { return errors.New("db down") })

	assert.NotPanics(t, func() {
		Emit(context.Background(), failing, logger, NewEvent(ActionAnonymize, "in.dcm", nil, nil))
		Emit(context.Background(), nil, logger, Event{})
	})
	assert.Contains(t, buf.String(), "failed to record audit event")
	assert.Contains(t, buf.String(), "db down")
}

func TestPlanJSONRoundTrip(t *testing.T) {
	plan := anonymizer.Plan{
		Fields:     anonymizer.Fields{PatientName: anonymizer.Change("Anon")},
		RemoveTags: []anonymizer.Address{{Group: 0x0010, Element: 0x0020}},
	}
	data, err := json.Marshal(plan)
	require.NoError(t, err)

	var back anonymizer.Plan
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, plan, back)
}
