package anonymizer

import (
	"strings"
	"time"
)

// PatientSex is the DICOM code string stored in (0010,0040).
type PatientSex string

const (
	SexMale   PatientSex = "M"
	SexFemale PatientSex = "F"
	SexOther  PatientSex = "O"
)

// ParsePatientSex accepts M, F or O in any case.
func ParsePatientSex(text string) (PatientSex, error) {
	switch strings.ToUpper(text) {
	case "M":
		return SexMale, nil
	case "F":
		return SexFemale, nil
	case "O":
		return SexOther, nil
	}
	return "", &ValueParseError{
		Field:  FieldPatientSex,
		Text:   text,
		Reason: "only one of the values M, F, O is allowed (not case sensitive)",
	}
}

func (s PatientSex) String() string { return string(s) }

// Birth date layouts accepted on input. The first one also matches
// single-digit months and days.
var birthDateLayouts = []string{"2006-1-2", "20060102"}

// DateLayoutDA is the DICOM DA value representation.
const DateLayoutDA = "20060102"

// ParseBirthDate accepts yyyy-mm-dd, yyyy-m-d or the DICOM yyyymmdd form.
func ParseBirthDate(text string) (time.Time, error) {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValueParseError{
		Field:  FieldPatientBirthDay,
		Text:   text,
		Reason: "must be in yyyy-mm-dd or yyyy-m-d format",
	}
}

// Field names shared by the command line, config documents and the plan.
const (
	FieldPatientName     = "patient_name"
	FieldPatientBirthDay = "patient_birth_day"
	FieldPatientSex      = "patient_sex"
	FieldRemoveTags      = "remove_tags"
)
