package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/preset"
)

// Overrides are typed instructions supplied directly by a caller.
type Overrides struct {
	Fields     anonymizer.Fields
	RemoveTags []anonymizer.Address
}

// RawOverrides is the textual form of Overrides as it arrives from flags.
// Empty strings mean "not supplied"; PatientName is a pointer because an
// empty name is a valid replacement.
type RawOverrides struct {
	PatientName     *string
	PatientSex      string
	PatientBirthDay string
	RemoveTags      []string
	// RemoveFields names fields (patient_name, patient_birth_day,
	// patient_sex) to delete from the record.
	RemoveFields []string
}

// ParseOverrides converts raw text into typed overrides. Value errors are
// reported here, before anything reaches a Builder.
func ParseOverrides(raw RawOverrides) (Overrides, error) {
	var o Overrides

	o.Fields.PatientName = anonymizer.FromPtr(raw.PatientName)
	if raw.PatientSex != "" {
		sex, err := anonymizer.ParsePatientSex(raw.PatientSex)
		if err != nil {
			return Overrides{}, err
		}
		o.Fields.PatientSex = anonymizer.Change(sex)
	}
	if raw.PatientBirthDay != "" {
		bd, err := anonymizer.ParseBirthDate(raw.PatientBirthDay)
		if err != nil {
			return Overrides{}, err
		}
		o.Fields.PatientBirthDate = anonymizer.Change(bd)
	}

	for _, item := range raw.RemoveTags {
		addrs, err := anonymizer.ParseAddressList(item)
		if err != nil {
			return Overrides{}, err
		}
		o.RemoveTags = append(o.RemoveTags, addrs...)
	}

	for _, name := range raw.RemoveFields {
		var target anonymizer.ActionKind
		switch name {
		case anonymizer.FieldPatientName:
			target = o.Fields.PatientName.Kind()
			o.Fields.PatientName = anonymizer.Remove[string]()
		case anonymizer.FieldPatientBirthDay:
			target = o.Fields.PatientBirthDate.Kind()
			o.Fields.PatientBirthDate = anonymizer.Remove[time.Time]()
		case anonymizer.FieldPatientSex:
			target = o.Fields.PatientSex.Kind()
			o.Fields.PatientSex = anonymizer.Remove[anonymizer.PatientSex]()
		default:
			return Overrides{}, &anonymizer.ValueParseError{
				Field:  "remove_field",
				Text:   name,
				Reason: fmt.Sprintf("must be one of %s, %s, %s", anonymizer.FieldPatientName, anonymizer.FieldPatientBirthDay, anonymizer.FieldPatientSex),
			}
		}
		if target == anonymizer.ActionChange {
			return Overrides{}, &anonymizer.ValueParseError{
				Field:  "remove_field",
				Text:   name,
				Reason: "field is also given a new value",
			}
		}
	}
	return o, nil
}

// NewFromOverrides returns a builder seeded with o.
func NewFromOverrides(o Overrides) *Builder {
	return NewBuilder().Override(o)
}

// FromDocumentFile returns a builder with the document at path merged. Load
// failures are returned; there is no fallback to an empty document.
func FromDocumentFile(path string, o Overrides) (*Builder, error) {
	doc, err := preset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	b := NewFromOverrides(o)
	if err := b.MergeDocument(doc); err != nil {
		return nil, err
	}
	return b, nil
}

// DocumentSource resolves stored presets by name.
type DocumentSource interface {
	Document(ctx context.Context, name string) (preset.Document, error)
}

// FromPreset returns a builder with the named stored preset merged.
func FromPreset(ctx context.Context, src DocumentSource, name string, o Overrides) (*Builder, error) {
	doc, err := src.Document(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", name, err)
	}
	b := NewFromOverrides(o)
	if err := b.MergeDocument(doc); err != nil {
		return nil, err
	}
	return b, nil
}
