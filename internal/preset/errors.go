package preset

import (
	"errors"
	"fmt"
)

// ErrPresetNotFound is returned by repositories for unknown preset names.
var ErrPresetNotFound = errors.New("preset not found")

// LoadError reports that a document could not be read or is not valid
// YAML/JSON.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load config document %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ShapeError reports a recognized key holding a value of the wrong shape.
type ShapeError struct {
	Key  string
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("config document key %q: %s", e.Key, e.Want)
	}
	return fmt.Sprintf("config document key %q: expected %s, got %s", e.Key, e.Want, e.Got)
}

// UnsupportedVersionError reports a version marker naming a schema this
// build does not implement.
type UnsupportedVersionError struct {
	Version   string
	Supported []string
	// Newer is set when Version is a valid version above every supported one.
	Newer bool
	Err   error
}

func (e *UnsupportedVersionError) Error() string {
	msg := fmt.Sprintf("unsupported config document version %q (supported: %v)", e.Version, e.Supported)
	if e.Newer {
		msg = fmt.Sprintf("config document version %q is newer than this build supports (supported: %v)", e.Version, e.Supported)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedVersionError) Unwrap() error { return e.Err }
