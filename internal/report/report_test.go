package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/presetstore"
	"github.com/ehr/dicom-tools/internal/runner"
)

var patientID = anonymizer.Address{Group: 0x0010, Element: 0x0020}

func samplePlan() anonymizer.Plan {
	return anonymizer.Plan{
		Fields: anonymizer.Fields{
			PatientName:      anonymizer.Change("Anon"),
			PatientBirthDate: anonymizer.Change(time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)),
			PatientSex:       anonymizer.Remove[anonymizer.PatientSex](),
		},
		RemoveTags: []anonymizer.Address{patientID},
	}
}

func TestPrinter_Plan(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Plan(samplePlan())

	out := buf.String()
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "patient_name")
	assert.Contains(t, out, "Anon")
	assert.Contains(t, out, "1970-01-02")
	assert.Contains(t, out, "remove")
	assert.Contains(t, out, "0x0010-0x0020")
	assert.NotContains(t, out, "\x1b[")
	assert.NotContains(t, out, "keeps every field")
}

func TestPrinter_PlanNoop(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Plan(anonymizer.Plan{})
	assert.Contains(t, buf.String(), "keeps every field")
}

func TestPrinter_Changes(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)

	p.Changes(nil)
	assert.Equal(t, "no changes\n", buf.String())

	buf.Reset()
	p.Changes([]anonymizer.FieldChange{{
		Address: anonymizer.PatientNameAddress,
		Action:  anonymizer.ActionChange,
		Before:  &anonymizer.Value{VR: anonymizer.VRPersonName, Strings: []string{"Doe^John"}},
		After:   &anonymizer.Value{VR: anonymizer.VRPersonName, Strings: []string{"Anon"}},
	}, {
		Address: patientID,
		Action:  anonymizer.ActionRemove,
	}})
	out := buf.String()
	assert.Contains(t, out, "Doe^John [PN]")
	assert.Contains(t, out, "Anon [PN]")
	assert.Contains(t, out, "-")
}

func TestPrinter_Result(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Result(&runner.Result{
		Input:        "in.dcm",
		Output:       "out.dcm",
		Saved:        true,
		BytesWritten: 2048,
		Applied:      anonymizer.Result{Changed: []anonymizer.Address{anonymizer.PatientNameAddress}},
	})
	assert.Contains(t, buf.String(), "in.dcm -> out.dcm: 1 changed, 0 removed, 2.0 KiB written")

	buf.Reset()
	New(&buf, false).Result(&runner.Result{Input: "in.dcm"})
	assert.Contains(t, buf.String(), "dry run")
}

func TestPrinter_Batch(t *testing.T) {
	results := []*runner.Result{
		{Input: "a.dcm", Output: "out/a.dcm", Saved: true, BytesIn: 1024, BytesWritten: 1000,
			Applied: anonymizer.Result{Removed: []anonymizer.Address{patientID}}},
		nil,
		{Input: "c.dcm", Output: "out/c.dcm", Saved: true, BytesWritten: 24,
			Applied: anonymizer.Result{Removed: []anonymizer.Address{patientID}}},
	}
	inputs := []string{"a.dcm", "b.dcm", "c.dcm"}

	var buf bytes.Buffer
	New(&buf, false).Batch(results, inputs, nil)
	out := buf.String()
	assert.Contains(t, out, "not done")
	assert.Contains(t, out, "1.0 KiB")
	assert.Contains(t, out, "removed addresses: [0x0010-0x0020]\n")
	assert.Contains(t, out, "3 file(s) processed, 1.0 KiB written")

	buf.Reset()
	New(&buf, false).Batch(results, inputs, errors.New("b.dcm: boom"))
	assert.Contains(t, buf.String(), "batch stopped: b.dcm: boom")
}

func TestPrinter_Presets(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Presets(nil, 0)
	assert.Equal(t, "no presets stored\n", buf.String())

	buf.Reset()
	p.Presets([]*presetstore.Preset{{Name: "research", Version: "1.1", Description: "drop ids", UpdatedAt: time.Now()}}, 3)
	out := buf.String()
	assert.Contains(t, out, "research")
	assert.Contains(t, out, "drop ids")
	assert.Contains(t, out, "showing 1 of 3")
}

func TestPrinter_Events(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Events(nil)
	assert.Equal(t, "no audit events\n", buf.String())

	buf.Reset()
	p.Events([]audit.Event{
		audit.NewEvent(audit.ActionAnonymize, "a.dcm", nil, nil),
		audit.NewEvent(audit.ActionSession, "b.dcm", nil, errors.New("bad file")),
	})
	out := buf.String()
	assert.Contains(t, out, "a.dcm")
	assert.Contains(t, out, audit.OutcomeSuccess)
	assert.Contains(t, out, audit.OutcomeFailure+": bad file")
}

func TestPlanJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PlanJSON(&buf, samplePlan()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{"action": "change", "value": "Anon"}, got["patient_name"])
	assert.Equal(t, map[string]any{"action": "remove"}, got["patient_sex"])
	assert.Equal(t, []any{"0x0010-0x0020"}, got["remove_tags"])
}
