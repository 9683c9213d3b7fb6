package anonymizer

import (
	"strings"
	"time"
)

// VR is a DICOM value representation code.
type VR string

const (
	VRPersonName VR = "PN"
	VRDate       VR = "DA"
	VRCodeString VR = "CS"
)

// Value is a field value as exchanged with a Store.
type Value struct {
	VR      VR       `json:"vr"`
	Strings []string `json:"value"`
}

func (v Value) String() string {
	return strings.Join(v.Strings, `\`)
}

// Store is the record being anonymized. Remove must be a no-op when the
// address is absent.
type Store interface {
	Get(addr Address) (Value, bool, error)
	Put(addr Address, v Value) error
	Remove(addr Address) error
}

// Result lists what Apply did, in the order it happened.
type Result struct {
	Changed []Address `json:"changed"`
	Removed []Address `json:"removed"`
}

// Apply performs the plan against store. Named fields are processed first
// (name, birth date, sex) and the removal list afterwards, so a removal entry
// for a named field wins over a Change of the same field.
//
// Apply stops at the first store failure; writes made before it stay in the
// store.
func Apply(plan Plan, store Store) (Result, error) {
	var res Result

	for _, s := range namedSteps(plan) {
		if err := applyAction(store, s.addr, s.action, &res); err != nil {
			return res, err
		}
	}

	for _, addr := range plan.RemoveTags {
		if err := store.Remove(addr); err != nil {
			return res, &StoreError{Op: "remove", Address: addr, Err: err}
		}
		res.Removed = append(res.Removed, addr)
	}

	return res, nil
}

type namedStep struct {
	addr   Address
	action Action[Value]
}

// namedSteps converts each named field action into the store's value type.
func namedSteps(plan Plan) []namedStep {
	return []namedStep{
		{PatientNameAddress, Map(plan.PatientName, personNameValue)},
		{PatientBirthDateAddress, Map(plan.PatientBirthDate, dateValue)},
		{PatientSexAddress, Map(plan.PatientSex, sexValue)},
	}
}

func applyAction(store Store, addr Address, a Action[Value], res *Result) error {
	switch a.Kind() {
	case ActionChange:
		v, _ := a.Value()
		if err := store.Put(addr, v); err != nil {
			return &StoreError{Op: "put", Address: addr, Err: err}
		}
		res.Changed = append(res.Changed, addr)
	case ActionRemove:
		if err := store.Remove(addr); err != nil {
			return &StoreError{Op: "remove", Address: addr, Err: err}
		}
		res.Removed = append(res.Removed, addr)
	}
	return nil
}

func personNameValue(name string) Value {
	return Value{VR: VRPersonName, Strings: []string{name}}
}

func dateValue(t time.Time) Value {
	return Value{VR: VRDate, Strings: []string{t.Format(DateLayoutDA)}}
}

func sexValue(s PatientSex) Value {
	return Value{VR: VRCodeString, Strings: []string{string(s)}}
}
