package dicomstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	preambleLen = 128
	magic       = "DICM"
)

var (
	ErrNotDICOM      = errors.New("not a DICOM file")
	ErrNotDCMPath    = errors.New("must be a valid dicom file path")
	ErrMissingParent = errors.New("output directory does not exist")
)

// IsDICOMPath reports whether path carries the .dcm extension.
func IsDICOMPath(path string) bool {
	return strings.HasSuffix(path, ".dcm")
}

// HasMagic reports whether r starts with a 128 byte preamble followed by
// the DICM marker.
func HasMagic(r io.Reader) bool {
	head := make([]byte, preambleLen+len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return false
	}
	return bytes.Equal(head[preambleLen:], []byte(magic))
}

// IsDICOMFile checks the DICM marker of the file at path.
func IsDICOMFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return HasMagic(f), nil
}

// ValidateInput checks that path names a readable DICOM file.
func ValidateInput(path string) error {
	ok, err := IsDICOMFile(path)
	if err != nil {
		return fmt.Errorf("input %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("input %s: %w", path, ErrNotDICOM)
	}
	return nil
}

// ValidateOutput checks that path ends in .dcm and its directory exists.
func ValidateOutput(path string) error {
	if !IsDICOMPath(path) {
		return fmt.Errorf("output %s: %w", path, ErrNotDCMPath)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("output %s: %w", path, ErrMissingParent)
	}
	return nil
}
