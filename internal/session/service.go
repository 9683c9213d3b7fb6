// Package session exposes anonymization as a sequence of calls over an
// uploaded file: begin, anonymize (any number of times), download, end. The
// file lives in a blob store between calls; nothing is kept in process
// globals.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/dicomstore"
	"github.com/ehr/dicom-tools/internal/metrics"
	"github.com/ehr/dicom-tools/internal/planner"
	"github.com/ehr/dicom-tools/internal/platform/blobstore"
	"github.com/ehr/dicom-tools/internal/preset"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrInvalidFile          = errors.New("uploaded file is not a readable DICOM file")
	ErrConflictingDocuments = errors.New("preset and document cannot be combined")
)

const contentType = "application/dicom"

// Record is a decoded file that can be edited and encoded again.
type Record interface {
	anonymizer.Store
	Bytes() ([]byte, error)
}

// Codec decodes uploaded bytes.
type Codec interface {
	Decode(data []byte) (Record, error)
}

// DICOMCodec decodes DICOM files with dicomstore.
type DICOMCodec struct{}

func (DICOMCodec) Decode(data []byte) (Record, error) {
	if !dicomstore.HasMagic(bytes.NewReader(data)) {
		return nil, ErrInvalidFile
	}
	rec, err := dicomstore.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return rec, nil
}

// Session describes an open session.
type Session struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

func fromBlob(m *blobstore.BlobMetadata) *Session {
	return &Session{
		ID:        m.ID,
		FileName:  m.FileName,
		Size:      m.Size,
		Hash:      m.Hash,
		Revision:  m.Revision,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		CreatedBy: m.CreatedBy,
	}
}

// AnonymizeRequest carries the instructions for one Anonymize call. Preset
// and Document are mutually exclusive.
type AnonymizeRequest struct {
	Overrides planner.Overrides
	Preset    string
	Document  preset.Document
	Actor     string
}

// AnonymizeResult reports one Anonymize call.
type AnonymizeResult struct {
	Session *Session                 `json:"session"`
	Plan    anonymizer.Plan          `json:"plan"`
	Changes []anonymizer.FieldChange `json:"changes"`
	Applied anonymizer.Result        `json:"applied"`
}

// Service implements the session operations.
type Service struct {
	blobs    blobstore.BlobStore
	codec    Codec
	presets  planner.DocumentSource
	recorder audit.Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// locks serializes Anonymize calls on the same session within this
	// process.
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// Option configures a Service.
type Option func(*Service)

func WithCodec(c Codec) Option                    { return func(s *Service) { s.codec = c } }
func WithPresets(src planner.DocumentSource) Option { return func(s *Service) { s.presets = src } }
func WithRecorder(r audit.Recorder) Option          { return func(s *Service) { s.recorder = r } }
func WithMetrics(m *metrics.Metrics) Option         { return func(s *Service) { s.metrics = m } }

func NewService(blobs blobstore.BlobStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		blobs:    blobs,
		codec:    DICOMCodec{},
		recorder: audit.Nop,
		logger:   logger.With().Str("component", "session").Logger(),
		locks:    make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Begin stores an uploaded file and opens a session over it. The file must
// decode.
func (s *Service) Begin(ctx context.Context, fileName string, content io.Reader, actor string) (*Session, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if _, err := s.codec.Decode(data); err != nil {
		return nil, err
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		CreatedBy:   actor,
	}, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	s.logger.Info().Str("session_id", meta.ID).Str("file_name", fileName).Int64("size", meta.Size).Msg("session opened")
	return fromBlob(meta), nil
}

// Get returns the session metadata.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	meta, err := s.blobs.GetMetadata(ctx, id)
	if err != nil {
		return nil, mapBlobErr(err)
	}
	return fromBlob(meta), nil
}

// Anonymize builds a plan from req, applies it to the session's file and
// stores the result back. A failed call leaves the stored file unchanged.
func (s *Service) Anonymize(ctx context.Context, id string, req AnonymizeRequest) (*AnonymizeResult, error) {
	start := time.Now()
	unlock := s.lock(id)
	defer unlock()

	res, err := s.anonymize(ctx, id, req)

	var plan *anonymizer.Plan
	if res != nil {
		plan = &res.Plan
	}
	event := audit.NewEvent(audit.ActionSession, id, plan, err)
	event.Actor = req.Actor
	audit.Emit(ctx, s.recorder, s.logger, event)

	if s.metrics != nil {
		outcome := metrics.OutcomeApplied
		var changed, removed int
		if err != nil {
			outcome = metrics.OutcomeFailed
		} else {
			changed, removed = len(res.Applied.Changed), len(res.Applied.Removed)
			s.metrics.AddBytesWritten(res.Session.Size)
		}
		s.metrics.ObserveRun(outcome, start, changed, removed)
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) anonymize(ctx context.Context, id string, req AnonymizeRequest) (*AnonymizeResult, error) {
	b, err := s.builder(ctx, req)
	if err != nil {
		return nil, err
	}
	plan, err := b.Build()
	if err != nil {
		return nil, err
	}
	res := &AnonymizeResult{Plan: plan}

	rc, _, err := s.blobs.Download(ctx, id)
	if err != nil {
		return res, mapBlobErr(err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return res, fmt.Errorf("read session file: %w", err)
	}

	rec, err := s.codec.Decode(data)
	if err != nil {
		return res, err
	}
	if res.Changes, err = anonymizer.Preview(plan, rec); err != nil {
		return res, err
	}
	if res.Applied, err = anonymizer.Apply(plan, rec); err != nil {
		return res, err
	}
	out, err := rec.Bytes()
	if err != nil {
		return res, err
	}

	meta, err := s.blobs.Replace(ctx, id, bytes.NewReader(out))
	if err != nil {
		return res, mapBlobErr(err)
	}
	res.Session = fromBlob(meta)
	return res, nil
}

func (s *Service) builder(ctx context.Context, req AnonymizeRequest) (*planner.Builder, error) {
	switch {
	case req.Preset != "" && req.Document != nil:
		return nil, ErrConflictingDocuments
	case req.Preset != "":
		if s.presets == nil {
			return nil, fmt.Errorf("preset %q: %w", req.Preset, preset.ErrPresetNotFound)
		}
		return planner.FromPreset(ctx, s.presets, req.Preset, req.Overrides)
	}
	b := planner.NewFromOverrides(req.Overrides)
	if req.Document != nil {
		if err := b.MergeDocument(req.Document); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Download returns the current file of the session.
func (s *Service) Download(ctx context.Context, id string) (io.ReadCloser, *Session, error) {
	rc, meta, err := s.blobs.Download(ctx, id)
	if err != nil {
		return nil, nil, mapBlobErr(err)
	}
	return rc, fromBlob(meta), nil
}

// End closes the session and discards its file.
func (s *Service) End(ctx context.Context, id string) error {
	if err := s.blobs.Delete(ctx, id); err != nil {
		return mapBlobErr(err)
	}
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
	s.logger.Info().Str("session_id", id).Msg("session closed")
	return nil
}

// ExpiryHook returns a blobstore.Options.OnExpire callback that accounts for
// sessions whose file was dropped by TTL instead of End.
func ExpiryHook(m *metrics.Metrics, logger zerolog.Logger) func(blobstore.BlobMetadata) {
	logger = logger.With().Str("component", "session").Logger()
	return func(meta blobstore.BlobMetadata) {
		if m != nil {
			m.SessionExpired()
		}
		logger.Info().Str("session_id", meta.ID).Str("file_name", meta.FileName).Msg("session expired")
	}
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func mapBlobErr(err error) error {
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return ErrSessionNotFound
	}
	return err
}
