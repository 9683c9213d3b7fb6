package anonymizer

import "time"

// Fields carries one action per supported named field. The zero value keeps
// every field.
type Fields struct {
	PatientName      Action[string]     `json:"patient_name"`
	PatientBirthDate Action[time.Time]  `json:"patient_birth_day"`
	PatientSex       Action[PatientSex] `json:"patient_sex"`
}

// Plan is a fully resolved set of instructions for one record. Every named
// field has exactly one action and RemoveTags lists the additional addresses
// to delete after the named fields were processed.
type Plan struct {
	Fields
	RemoveTags []Address `json:"remove_tags"`
}

// IsNoop reports whether applying p would leave any record unchanged.
func (p Plan) IsNoop() bool {
	return p.PatientName.IsKeep() &&
		p.PatientBirthDate.IsKeep() &&
		p.PatientSex.IsKeep() &&
		len(p.RemoveTags) == 0
}
