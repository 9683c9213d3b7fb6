// Package dicomstore adapts a parsed DICOM dataset to the anonymizer.Store
// interface.
package dicomstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/suyashkumar/dicom"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

// Record is a DICOM dataset opened for editing. Only top-level elements are
// addressed; sequences are left as they are.
type Record struct {
	ds dicom.Dataset
}

var _ anonymizer.Store = (*Record)(nil)

// Open parses the file at path. Pixel data is read along with everything
// else so the record can be written back unchanged.
func Open(path string) (*Record, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse dicom file %s: %w", path, err)
	}
	return &Record{ds: ds}, nil
}

// Parse reads a record of size bytes from r.
func Parse(r io.Reader, size int64) (*Record, error) {
	ds, err := dicom.Parse(r, size, nil)
	if err != nil {
		return nil, fmt.Errorf("parse dicom: %w", err)
	}
	return &Record{ds: ds}, nil
}

// ParseBytes is Parse over an in-memory file.
func ParseBytes(data []byte) (*Record, error) {
	return Parse(bytes.NewReader(data), int64(len(data)))
}

// FromDataset wraps an already parsed dataset.
func FromDataset(ds dicom.Dataset) *Record {
	return &Record{ds: ds}
}

// Dataset returns the underlying dataset.
func (r *Record) Dataset() dicom.Dataset { return r.ds }

// Len reports the number of top-level elements.
func (r *Record) Len() int { return len(r.ds.Elements) }

func (r *Record) Get(addr anonymizer.Address) (anonymizer.Value, bool, error) {
	elem, err := r.ds.FindElementByTag(addr.Tag())
	if err != nil {
		if errors.Is(err, dicom.ErrorElementNotFound) {
			return anonymizer.Value{}, false, nil
		}
		return anonymizer.Value{}, false, err
	}
	return valueOf(elem), true, nil
}

// Put replaces the element at addr, or inserts it keeping the dataset in
// ascending tag order.
func (r *Record) Put(addr anonymizer.Address, v anonymizer.Value) error {
	elem, err := dicom.NewElement(addr.Tag(), v.Strings)
	if err != nil {
		return fmt.Errorf("build element: %w", err)
	}
	if v.VR != "" {
		elem.RawValueRepresentation = string(v.VR)
	}

	i := sort.Search(len(r.ds.Elements), func(i int) bool {
		return !anonymizer.AddressFromTag(r.ds.Elements[i].Tag).Less(addr)
	})
	if i < len(r.ds.Elements) && addr.Matches(r.ds.Elements[i].Tag) {
		r.ds.Elements[i] = elem
		return nil
	}
	r.ds.Elements = append(r.ds.Elements, nil)
	copy(r.ds.Elements[i+1:], r.ds.Elements[i:])
	r.ds.Elements[i] = elem
	return nil
}

// Remove deletes every top-level element at addr. Absent addresses are not
// an error.
func (r *Record) Remove(addr anonymizer.Address) error {
	kept := r.ds.Elements[:0]
	for _, e := range r.ds.Elements {
		if !addr.Matches(e.Tag) {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(r.ds.Elements); i++ {
		r.ds.Elements[i] = nil
	}
	r.ds.Elements = kept
	return nil
}

// Write encodes the record to w.
func (r *Record) Write(w io.Writer) error {
	if err := dicom.Write(w, r.ds, dicom.SkipVRVerification()); err != nil {
		return fmt.Errorf("write dicom: %w", err)
	}
	return nil
}

// Bytes encodes the record into memory.
func (r *Record) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the record to path through a temporary file in the same
// directory, so a failed write never leaves a truncated output behind. It
// returns the number of bytes written.
func (r *Record) Save(path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dicom-tools-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := &countingWriter{w: tmp}
	if err := r.Write(cw); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename to %s: %w", path, err)
	}
	return cw.n, nil
}

func valueOf(elem *dicom.Element) anonymizer.Value {
	v := anonymizer.Value{VR: anonymizer.VR(elem.RawValueRepresentation)}
	if elem.Value == nil {
		return v
	}
	switch raw := elem.Value.GetValue().(type) {
	case []string:
		v.Strings = append([]string(nil), raw...)
	default:
		v.Strings = []string{fmt.Sprint(raw)}
	}
	return v
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
