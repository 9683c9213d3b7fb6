// Package anonymizer holds the tri-state field actions, the resolved
// anonymization plan and the engine that applies a plan to a DICOM record.
package anonymizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Address identifies a single record field by its (group, element) pair.
type Address struct {
	Group   uint16
	Element uint16
}

var (
	PatientNameAddress      = AddressFromTag(tag.PatientName)
	PatientBirthDateAddress = AddressFromTag(tag.PatientBirthDate)
	PatientSexAddress       = AddressFromTag(tag.PatientSex)
)

// AddressFromTag converts the record store's native tag type.
func AddressFromTag(t tag.Tag) Address {
	return Address{Group: t.Group, Element: t.Element}
}

// ParseAddress parses the 0xGGGG-0xEEEE form. The 0x prefix is optional and
// hex digits are case-insensitive.
func ParseAddress(text string) (Address, error) {
	parts := strings.Split(text, "-")
	if len(parts) != 2 {
		return Address{}, &AddressParseError{Text: text, Reason: "expected exactly two hyphen-separated tokens"}
	}

	group, err := parseHex16(parts[0])
	if err != nil {
		return Address{}, &AddressParseError{Text: text, Reason: fmt.Sprintf("group %q: %v", parts[0], err)}
	}
	element, err := parseHex16(parts[1])
	if err != nil {
		return Address{}, &AddressParseError{Text: text, Reason: fmt.Sprintf("element %q: %v", parts[1], err)}
	}

	return Address{Group: group, Element: element}, nil
}

// ParseAddressList parses a comma-delimited list of addresses. An empty
// string yields an empty list.
func ParseAddressList(text string) ([]Address, error) {
	if text == "" {
		return []Address{}, nil
	}
	raw := strings.Split(text, ",")
	out := make([]Address, 0, len(raw))
	for _, r := range raw {
		a, err := ParseAddress(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseHex16(token string) (uint16, error) {
	digits := token
	if len(digits) >= 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		digits = digits[2:]
	}
	if digits == "" {
		return 0, fmt.Errorf("no hex digits")
	}
	for _, r := range digits {
		if !isHexDigit(r) {
			return 0, fmt.Errorf("invalid hex digit %q", r)
		}
	}
	v, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("out of 16-bit range")
	}
	return uint16(v), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// String returns the canonical form, e.g. 0x0010-0x0020.
func (a Address) String() string {
	return fmt.Sprintf("0x%04X-0x%04X", a.Group, a.Element)
}

// Tag returns the record store's native tag for this address.
func (a Address) Tag() tag.Tag {
	return tag.Tag{Group: a.Group, Element: a.Element}
}

// Matches reports whether t identifies the same field.
func (a Address) Matches(t tag.Tag) bool {
	return a.Group == t.Group && a.Element == t.Element
}

// Less orders addresses by group, then element.
func (a Address) Less(b Address) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Element < b.Element
}

// MarshalText implements encoding.TextMarshaler so addresses render in their
// canonical text form inside JSON and YAML documents.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
