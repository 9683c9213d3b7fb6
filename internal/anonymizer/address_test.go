package anonymizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestParseAddress_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Address
		text string
	}{
		{"0x0010-0x0020", Address{0x0010, 0x0020}, "0x0010-0x0020"},
		{"0010-0020", Address{0x0010, 0x0020}, "0x0010-0x0020"},
		{"0x7fe0-0x0010", Address{0x7FE0, 0x0010}, "0x7FE0-0x0010"},
		{"0X7FE0-0Xabcd", Address{0x7FE0, 0xABCD}, "0x7FE0-0xABCD"},
		{"0x10-0x1", Address{0x0010, 0x0001}, "0x0010-0x0001"},
		{"0xffff-0x0000", Address{0xFFFF, 0x0000}, "0xFFFF-0x0000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.text, got.String())

			again, err := ParseAddress(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"0x0010",
		"0x0010-0x0020-0x0030",
		"0x0010-",
		"-0x0010",
		"0x-0x0010",
		"0xGGGG-0x0010",
		"0x0010-0xZZ",
		"0x10000-0x0010",
		" 0x0010-0x0020",
		"0x0010 -0x0020",
		"+10-0x0020",
		"0x0010_0x0020",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAddress(in)
			require.Error(t, err)

			var perr *AddressParseError
			require.True(t, errors.As(err, &perr), "want AddressParseError, got %T", err)
			assert.Equal(t, in, perr.Text)
			assert.Contains(t, err.Error(), in)
		})
	}
}

func TestParseAddressList(t *testing.T) {
	got, err := ParseAddressList("0x0010-0x0020,0x0010-0x0040,0x0010-0x0020")
	require.NoError(t, err)
	assert.Equal(t, []Address{
		{0x0010, 0x0020},
		{0x0010, 0x0040},
		{0x0010, 0x0020},
	}, got)

	empty, err := ParseAddressList("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseAddressList("0x0010-0x0020,nope")
	var perr *AddressParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nope", perr.Text)
}

func TestAddress_Tag(t *testing.T) {
	assert.True(t, PatientNameAddress.Matches(tag.PatientName))
	assert.True(t, PatientBirthDateAddress.Matches(tag.PatientBirthDate))
	assert.True(t, PatientSexAddress.Matches(tag.PatientSex))
	assert.False(t, PatientSexAddress.Matches(tag.PatientName))

	a := Address{0x0008, 0x0050}
	assert.Equal(t, a, AddressFromTag(a.Tag()))
	assert.Equal(t, "0x0010-0x0010", PatientNameAddress.String())
}

func TestAddress_Less(t *testing.T) {
	assert.True(t, Address{0x0008, 0xFFFF}.Less(Address{0x0010, 0x0000}))
	assert.True(t, Address{0x0010, 0x0010}.Less(Address{0x0010, 0x0020}))
	assert.False(t, Address{0x0010, 0x0020}.Less(Address{0x0010, 0x0020}))
}

func TestAddress_TextRoundTrip(t *testing.T) {
	a := Address{0x0010, 0x1000}
	text, err := a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0x0010-0x1000", string(text))

	var b Address
	require.NoError(t, b.UnmarshalText([]byte("0x0010-0x1000")))
	assert.Equal(t, a, b)
	assert.Error(t, b.UnmarshalText([]byte("bogus")))
}
