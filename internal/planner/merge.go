package planner

import (
	"time"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

// fieldMerger resolves one named field of dst from a primary and a fallback
// source.
type fieldMerger interface {
	merge(dst, primary, fallback *anonymizer.Fields)
}

// field binds the generic precedence rule to one Fields member.
type field[T any] struct {
	get func(*anonymizer.Fields) *anonymizer.Action[T]
}

func (f field[T]) merge(dst, primary, fallback *anonymizer.Fields) {
	*f.get(dst) = resolve(*f.get(primary), *f.get(fallback))
}

// fieldTable lists every named field of a plan. Adding a field to
// anonymizer.Fields means adding one line here.
var fieldTable = []fieldMerger{
	field[string]{get: func(f *anonymizer.Fields) *anonymizer.Action[string] { return &f.PatientName }},
	field[time.Time]{get: func(f *anonymizer.Fields) *anonymizer.Action[time.Time] { return &f.PatientBirthDate }},
	field[anonymizer.PatientSex]{get: func(f *anonymizer.Fields) *anonymizer.Action[anonymizer.PatientSex] { return &f.PatientSex }},
}

// resolve returns the override unless it is Keep, then the document action.
// A document action of Keep leaves the field kept.
func resolve[T any](override, doc anonymizer.Action[T]) anonymizer.Action[T] {
	if !override.IsKeep() {
		return override
	}
	return doc
}
