package anonymizer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a map-backed Store. failOn makes the named operation fail for
// the given address.
type memStore struct {
	values map[Address]Value
	failOn map[string]Address
	calls  []string
}

func newMemStore(seed map[Address]Value) *memStore {
	s := &memStore{values: map[Address]Value{}, failOn: map[string]Address{}}
	for k, v := range seed {
		s.values[k] = v
	}
	return s
}

var errBoom = errors.New("boom")

func (s *memStore) Get(addr Address) (Value, bool, error) {
	if a, ok := s.failOn["get"]; ok && a == addr {
		return Value{}, false, errBoom
	}
	v, ok := s.values[addr]
	return v, ok, nil
}

func (s *memStore) Put(addr Address, v Value) error {
	s.calls = append(s.calls, "put "+addr.String())
	if a, ok := s.failOn["put"]; ok && a == addr {
		return errBoom
	}
	s.values[addr] = v
	return nil
}

func (s *memStore) Remove(addr Address) error {
	s.calls = append(s.calls, "remove "+addr.String())
	if a, ok := s.failOn["remove"]; ok && a == addr {
		return errBoom
	}
	delete(s.values, addr)
	return nil
}

func (s *memStore) snapshot() map[Address]Value {
	out := make(map[Address]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

var studyDate = Address{0x0008, 0x0020}

func seedRecord() map[Address]Value {
	return map[Address]Value{
		PatientNameAddress:      {VR: VRPersonName, Strings: []string{"Doe^John"}},
		PatientBirthDateAddress: {VR: VRDate, Strings: []string{"19700101"}},
		PatientSexAddress:       {VR: VRCodeString, Strings: []string{"M"}},
		studyDate:               {VR: VRDate, Strings: []string{"20200101"}},
	}
}

func TestApply_ChangeSex(t *testing.T) {
	store := newMemStore(seedRecord())
	plan := Plan{Fields: Fields{PatientSex: Change(SexFemale)}}

	res, err := Apply(plan, store)
	require.NoError(t, err)

	assert.Equal(t, []string{"F"}, store.values[PatientSexAddress].Strings)
	assert.Equal(t, VRCodeString, store.values[PatientSexAddress].VR)
	assert.Equal(t, []Address{PatientSexAddress}, res.Changed)
	assert.Empty(t, res.Removed)
}

func TestApply_AllFields(t *testing.T) {
	store := newMemStore(seedRecord())
	plan := Plan{
		Fields: Fields{
			PatientName:      Change("Anonymous"),
			PatientBirthDate: Change(time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)),
			PatientSex:       Remove[PatientSex](),
		},
		RemoveTags: []Address{studyDate},
	}

	res, err := Apply(plan, store)
	require.NoError(t, err)

	assert.Equal(t, Value{VR: VRPersonName, Strings: []string{"Anonymous"}}, store.values[PatientNameAddress])
	assert.Equal(t, Value{VR: VRDate, Strings: []string{"19900102"}}, store.values[PatientBirthDateAddress])
	assert.NotContains(t, store.values, PatientSexAddress)
	assert.NotContains(t, store.values, studyDate)
	assert.Equal(t, []Address{PatientNameAddress, PatientBirthDateAddress}, res.Changed)
	assert.Equal(t, []Address{PatientSexAddress, studyDate}, res.Removed)
}

func TestApply_KeepIsNoop(t *testing.T) {
	store := newMemStore(seedRecord())
	before := store.snapshot()

	plan := Plan{}
	require.True(t, plan.IsNoop())

	res, err := Apply(plan, store)
	require.NoError(t, err)
	assert.Equal(t, before, store.values)
	assert.Empty(t, store.calls)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Removed)
}

func TestApply_Idempotent(t *testing.T) {
	plan := Plan{
		Fields: Fields{
			PatientName: Change("Anonymous"),
			PatientSex:  Remove[PatientSex](),
		},
		RemoveTags: []Address{studyDate, studyDate, {0x0010, 0x1000}},
	}

	once := newMemStore(seedRecord())
	_, err := Apply(plan, once)
	require.NoError(t, err)

	twice := newMemStore(seedRecord())
	_, err = Apply(plan, twice)
	require.NoError(t, err)
	_, err = Apply(plan, twice)
	require.NoError(t, err)

	assert.Equal(t, once.values, twice.values)
}

func TestApply_RemovalWinsOverChange(t *testing.T) {
	store := newMemStore(seedRecord())
	plan := Plan{
		Fields:     Fields{PatientName: Change("Anonymous")},
		RemoveTags: []Address{PatientNameAddress},
	}

	_, err := Apply(plan, store)
	require.NoError(t, err)
	assert.NotContains(t, store.values, PatientNameAddress)
	assert.Equal(t, []string{"put 0x0010-0x0010", "remove 0x0010-0x0010"}, store.calls)
}

func TestApply_StoreFailureIsNotRolledBack(t *testing.T) {
	store := newMemStore(seedRecord())
	store.failOn["put"] = PatientBirthDateAddress

	plan := Plan{Fields: Fields{
		PatientName:      Change("Anonymous"),
		PatientBirthDate: Change(time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)),
		PatientSex:       Change(SexOther),
	}}

	res, err := Apply(plan, store)
	require.Error(t, err)

	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "put", serr.Op)
	assert.Equal(t, PatientBirthDateAddress, serr.Address)
	assert.ErrorIs(t, err, errBoom)

	assert.Equal(t, []string{"Anonymous"}, store.values[PatientNameAddress].Strings, "earlier write stays committed")
	assert.Equal(t, []string{"M"}, store.values[PatientSexAddress].Strings, "later fields are not touched")
	assert.Equal(t, []Address{PatientNameAddress}, res.Changed)
}

func TestApply_RemoveFailure(t *testing.T) {
	store := newMemStore(seedRecord())
	store.failOn["remove"] = studyDate

	_, err := Apply(Plan{RemoveTags: []Address{studyDate}}, store)
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "remove", serr.Op)
}

func TestPreview(t *testing.T) {
	store := newMemStore(seedRecord())
	before := store.snapshot()

	plan := Plan{
		Fields: Fields{
			PatientName: Change("Anonymous"),
			PatientSex:  Remove[PatientSex](),
		},
		RemoveTags: []Address{{0x0010, 0x1000}},
	}

	changes, err := Preview(plan, store)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, PatientNameAddress, changes[0].Address)
	assert.Equal(t, ActionChange, changes[0].Action)
	assert.Equal(t, "Doe^John", changes[0].Before.String())
	assert.Equal(t, "Anonymous", changes[0].After.String())

	assert.Equal(t, ActionRemove, changes[1].Action)
	assert.Nil(t, changes[1].After)

	assert.Nil(t, changes[2].Before, "absent tag has no previous value")
	assert.Equal(t, before, store.values, "preview must not modify the store")
}

func TestPreview_RemovalAfterChange(t *testing.T) {
	store := newMemStore(seedRecord())
	plan := Plan{
		Fields:     Fields{PatientName: Change("Anonymous")},
		RemoveTags: []Address{PatientNameAddress, PatientNameAddress},
	}

	changes, err := Preview(plan, store)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, "Doe^John", changes[0].Before.String())
	require.NotNil(t, changes[1].Before)
	assert.Equal(t, "Anonymous", changes[1].Before.String(), "removal sees the value written by the change")
	assert.Nil(t, changes[2].Before, "second removal finds nothing left")

	_, err = Apply(plan, store)
	require.NoError(t, err)
	_, ok, _ := store.Get(PatientNameAddress)
	assert.False(t, ok)
}

func TestPreview_GetFailure(t *testing.T) {
	store := newMemStore(seedRecord())
	store.failOn["get"] = PatientNameAddress

	_, err := Preview(Plan{Fields: Fields{PatientName: Change("x")}}, store)
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "get", serr.Op)
}
