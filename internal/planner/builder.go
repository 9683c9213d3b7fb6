// Package planner turns caller overrides and an optional config document
// into one resolved anonymization plan.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/preset"
)

var (
	ErrBuilderConsumed       = errors.New("plan builder already consumed")
	ErrDocumentAlreadyMerged = errors.New("a config document was already merged")
)

// Builder accumulates instructions for a single run. It is not safe for
// concurrent use and produces exactly one Plan.
type Builder struct {
	overrides  anonymizer.Fields
	removeTags []anonymizer.Address

	doc      preset.Document
	consumed bool
}

// NewBuilder returns an empty builder. Building it unchanged yields a plan
// that keeps every field.
func NewBuilder() *Builder {
	return &Builder{}
}

// PatientName sets the explicit instruction for the patient name. An
// explicit Keep is the same as not calling it.
func (b *Builder) PatientName(a anonymizer.Action[string]) *Builder {
	b.overrides.PatientName = a
	return b
}

func (b *Builder) PatientBirthDate(a anonymizer.Action[time.Time]) *Builder {
	b.overrides.PatientBirthDate = a
	return b
}

func (b *Builder) PatientSex(a anonymizer.Action[anonymizer.PatientSex]) *Builder {
	b.overrides.PatientSex = a
	return b
}

// RemoveTags appends to the directly supplied removal list.
func (b *Builder) RemoveTags(addrs ...anonymizer.Address) *Builder {
	b.removeTags = append(b.removeTags, addrs...)
	return b
}

// Override applies a parsed set of caller overrides. Keep entries in o leave
// earlier overrides untouched.
func (b *Builder) Override(o Overrides) *Builder {
	current := b.overrides
	for _, f := range fieldTable {
		f.merge(&b.overrides, &o.Fields, &current)
	}
	return b.RemoveTags(o.RemoveTags...)
}

// MergeDocument records the config document for this run. Only one document
// may be merged.
func (b *Builder) MergeDocument(doc preset.Document) error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	if b.doc != nil {
		return ErrDocumentAlreadyMerged
	}
	if doc == nil {
		return errors.New("merge config document: document is nil")
	}
	b.doc = doc
	return nil
}

// Build resolves every field and returns the plan. The builder cannot be
// used again afterwards.
func (b *Builder) Build() (anonymizer.Plan, error) {
	if b.consumed {
		return anonymizer.Plan{}, ErrBuilderConsumed
	}
	b.consumed = true

	docFields, docTags, err := documentFields(b.doc)
	if err != nil {
		return anonymizer.Plan{}, err
	}

	var plan anonymizer.Plan
	for _, f := range fieldTable {
		f.merge(&plan.Fields, &b.overrides, &docFields)
	}

	plan.RemoveTags = make([]anonymizer.Address, 0, len(b.removeTags)+len(docTags))
	plan.RemoveTags = append(plan.RemoveTags, b.removeTags...)
	plan.RemoveTags = append(plan.RemoveTags, docTags...)
	return plan, nil
}

// documentFields normalizes either document generation into per-field
// actions. A 1.0 present value means Change.
func documentFields(doc preset.Document) (anonymizer.Fields, []anonymizer.Address, error) {
	switch d := doc.(type) {
	case nil:
		return anonymizer.Fields{}, nil, nil
	case *preset.DocumentV10:
		return documentFields(preset.Upgrade(d))
	case *preset.DocumentV11:
		return anonymizer.Fields{
			PatientName:      d.PatientName,
			PatientBirthDate: d.PatientBirthDay,
			PatientSex:       d.PatientSex,
		}, d.RemoveTags, nil
	}
	return anonymizer.Fields{}, nil, fmt.Errorf("merge config document: unsupported type %T", doc)
}
