// Package preset models persisted anonymization presets ("config documents").
// Two schema generations coexist: 1.0 stores plain optional values and cannot
// express removal, 1.1 stores a tri-state action per field. The generations
// are kept apart as distinct Document variants until a plan is built.
package preset

import (
	"time"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

// Schema versions understood by the loader.
const (
	Version10 = "1.0"
	Version11 = "1.1"

	// DefaultVersion is assumed when a document has no version marker.
	DefaultVersion = Version10
)

// Document is one of *DocumentV10 or *DocumentV11.
type Document interface {
	Version() string
	isDocument()
}

// DocumentV10 is the 1.0 schema. A nil field was absent from the document.
type DocumentV10 struct {
	PatientName     *string
	PatientBirthDay *time.Time
	PatientSex      *anonymizer.PatientSex
	// RemoveTags is nil when the key was absent.
	RemoveTags []anonymizer.Address
}

func (*DocumentV10) Version() string { return Version10 }
func (*DocumentV10) isDocument()     {}

// DocumentV11 is the 1.1 schema.
type DocumentV11 struct {
	PatientName     anonymizer.Action[string]
	PatientBirthDay anonymizer.Action[time.Time]
	PatientSex      anonymizer.Action[anonymizer.PatientSex]
	RemoveTags      []anonymizer.Address
}

func (*DocumentV11) Version() string { return Version11 }
func (*DocumentV11) isDocument()     {}

// Upgrade converts a 1.0 document into the equivalent 1.1 document. Present
// values become Change actions, absent ones Keep.
func Upgrade(d *DocumentV10) *DocumentV11 {
	out := &DocumentV11{
		PatientName:     anonymizer.FromPtr(d.PatientName),
		PatientBirthDay: anonymizer.FromPtr(d.PatientBirthDay),
		PatientSex:      anonymizer.FromPtr(d.PatientSex),
		RemoveTags:      make([]anonymizer.Address, len(d.RemoveTags)),
	}
	copy(out.RemoveTags, d.RemoveTags)
	return out
}
