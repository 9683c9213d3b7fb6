// Package presetstore keeps named config documents so runs and sessions can
// refer to them by name.
package presetstore

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrInvalidName = errors.New("preset name must be 1-128 characters of letters, digits, '.', '_' or '-'")
	ErrEmptyBody   = errors.New("preset body is empty")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Preset is a stored config document. Body is the document text exactly as
// it was pushed; Version is the schema version it declared.
type Preset struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}
