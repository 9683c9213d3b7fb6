// Package report renders plans, previews and run results for the terminal.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/presetstore"
	"github.com/ehr/dicom-tools/internal/runner"
)

const maxColWidth = 60

// Printer writes human readable tables to w.
type Printer struct {
	w      io.Writer
	header func(a ...interface{}) string
	ok     *color.Color
	warn   *color.Color
	fail   *color.Color
}

// New returns a Printer. With colored false no escape sequences are written.
func New(w io.Writer, colored bool) *Printer {
	hdr := color.New(color.FgGreen, color.Underline)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)
	if !colored {
		for _, c := range []*color.Color{hdr, ok, warn, fail} {
			c.DisableColor()
		}
	}
	return &Printer{w: w, header: hdr.SprintFunc(), ok: ok, warn: warn, fail: fail}
}

func (p *Printer) table() *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = maxColWidth
	t.Wrap = true
	return t
}

func (p *Printer) addHeader(t *uitable.Table, cols ...string) {
	t.AddRow(lo.Map(cols, func(c string, _ int) interface{} { return p.header(c) })...)
}

func (p *Printer) flush(t *uitable.Table) {
	fmt.Fprintln(p.w, t)
}

// Plan prints one row per named field and the extra addresses to remove.
func (p *Printer) Plan(plan anonymizer.Plan) {
	t := p.table()
	p.addHeader(t, "FIELD", "ADDRESS", "ACTION", "VALUE")
	t.AddRow(anonymizer.FieldPatientName, anonymizer.PatientNameAddress, plan.PatientName.Kind(),
		valueOf(plan.PatientName, func(s string) string { return s }))
	t.AddRow(anonymizer.FieldPatientBirthDay, anonymizer.PatientBirthDateAddress, plan.PatientBirthDate.Kind(),
		valueOf(plan.PatientBirthDate, func(d time.Time) string { return d.Format("2006-01-02") }))
	t.AddRow(anonymizer.FieldPatientSex, anonymizer.PatientSexAddress, plan.PatientSex.Kind(),
		valueOf(plan.PatientSex, anonymizer.PatientSex.String))
	for _, addr := range plan.RemoveTags {
		t.AddRow("", addr, anonymizer.ActionRemove, "")
	}
	p.flush(t)
	if plan.IsNoop() {
		p.warn.Fprintln(p.w, "plan keeps every field; the output equals the input")
	}
}

func valueOf[T any](a anonymizer.Action[T], format func(T) string) string {
	v, ok := a.Value()
	if !ok {
		return ""
	}
	return format(v)
}

// Changes prints a before/after preview. Addresses missing from the record
// show "-" as their previous value.
func (p *Printer) Changes(changes []anonymizer.FieldChange) {
	if len(changes) == 0 {
		fmt.Fprintln(p.w, "no changes")
		return
	}
	t := p.table()
	p.addHeader(t, "ADDRESS", "ACTION", "BEFORE", "AFTER")
	for _, c := range changes {
		t.AddRow(c.Address, c.Action, render(c.Before), render(c.After))
	}
	p.flush(t)
}

func render(v *anonymizer.Value) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%s [%s]", v.String(), v.VR)
}

// Result prints the preview of a single run followed by a status line.
func (p *Printer) Result(res *runner.Result) {
	p.Changes(res.Changes)
	switch {
	case res.Saved:
		p.ok.Fprintf(p.w, "%s -> %s: %d changed, %d removed, %s written in %s\n",
			res.Input, res.Output,
			len(res.Applied.Changed), len(res.Applied.Removed),
			humanize.IBytes(uint64(res.BytesWritten)), res.Duration.Round(time.Millisecond))
	case res.Output == "":
		p.warn.Fprintf(p.w, "%s: dry run, %d change(s) not written\n", res.Input, len(res.Changes))
	default:
		p.warn.Fprintf(p.w, "%s: dry run, %s left untouched\n", res.Input, res.Output)
	}
}

// Batch prints one summary row per input. Nil results are runs that never
// finished because an earlier input failed.
func (p *Printer) Batch(results []*runner.Result, inputs []string, err error) {
	t := p.table()
	p.addHeader(t, "INPUT", "OUTPUT", "STATUS", "CHANGED", "REMOVED", "SIZE")
	var written int64
	for i, in := range inputs {
		var res *runner.Result
		if i < len(results) {
			res = results[i]
		}
		if res == nil {
			t.AddRow(in, "", p.fail.Sprint("not done"), "", "", "")
			continue
		}
		status := p.ok.Sprint("saved")
		if !res.Saved {
			status = p.warn.Sprint("dry run")
		}
		written += res.BytesWritten
		t.AddRow(in, res.Output, status, len(res.Applied.Changed), len(res.Applied.Removed),
			humanize.IBytes(uint64(res.BytesIn)))
	}
	p.flush(t)

	done := lo.Filter(results, func(r *runner.Result, _ int) bool { return r != nil })
	removed := lo.Uniq(lo.FlatMap(done, func(r *runner.Result, _ int) []anonymizer.Address {
		return r.Applied.Removed
	}))
	if len(removed) > 0 {
		fmt.Fprintf(p.w, "removed addresses: %v\n", removed)
	}
	if err != nil {
		p.fail.Fprintf(p.w, "batch stopped: %v\n", err)
		return
	}
	p.ok.Fprintf(p.w, "%d file(s) processed, %s written\n", len(inputs), humanize.IBytes(uint64(written)))
}

// Presets lists stored presets with their relative update time.
func (p *Printer) Presets(items []*presetstore.Preset, total int) {
	if len(items) == 0 {
		fmt.Fprintln(p.w, "no presets stored")
		return
	}
	t := p.table()
	p.addHeader(t, "NAME", "VERSION", "DESCRIPTION", "UPDATED")
	for _, it := range items {
		t.AddRow(it.Name, it.Version, it.Description, humanize.Time(it.UpdatedAt))
	}
	p.flush(t)
	if total > len(items) {
		fmt.Fprintf(p.w, "showing %d of %d\n", len(items), total)
	}
}

// Events lists audit events, failures in red.
func (p *Printer) Events(events []audit.Event) {
	if len(events) == 0 {
		fmt.Fprintln(p.w, "no audit events")
		return
	}
	t := p.table()
	p.addHeader(t, "WHEN", "ACTION", "SOURCE", "ACTOR", "OUTCOME")
	for _, e := range events {
		outcome := p.ok.Sprint(e.Outcome)
		if e.Outcome == audit.OutcomeFailure {
			outcome = p.fail.Sprint(e.Outcome + ": " + e.Error)
		}
		t.AddRow(humanize.Time(e.RecordedAt), e.Action, e.Source, e.Actor, outcome)
	}
	p.flush(t)
}

// PlanJSON writes plan as indented JSON.
func PlanJSON(w io.Writer, plan anonymizer.Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
