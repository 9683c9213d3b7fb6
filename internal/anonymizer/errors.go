package anonymizer

import "fmt"

// AddressParseError reports tag text that is not of the form 0xGGGG-0xEEEE.
type AddressParseError struct {
	Text   string
	Reason string
}

func (e *AddressParseError) Error() string {
	return fmt.Sprintf("invalid tag %q: %s", e.Text, e.Reason)
}

// ValueParseError reports a raw field value that could not be converted to
// its typed form.
type ValueParseError struct {
	Field  string
	Text   string
	Reason string
}

func (e *ValueParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Text, e.Reason)
}

// StoreError wraps a failure reported by the record store.
type StoreError struct {
	Op      string
	Address Address
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
