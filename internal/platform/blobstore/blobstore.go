// Package blobstore keeps uploaded files between requests. It defines the
// BlobStore interface, an in-memory implementation for tests and single
// node development, and a Redis implementation shared by several servers.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// DefaultMaxFileSize is used when a store is built without a size limit
// (100 MB).
const DefaultMaxFileSize = 100 * 1024 * 1024

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	Revision    int       `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// ---------------------------------------------------------------------------
// BlobStore interface
// ---------------------------------------------------------------------------

// BlobStore defines the contract for blob storage backends. Blobs expire
// after the store's TTL unless they are replaced.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	// Replace swaps the content of an existing blob and bumps its revision.
	Replace(ctx context.Context, id string, content io.Reader) (*BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// Options tune a store.
type Options struct {
	// TTL bounds the lifetime of an untouched blob. Zero means no expiry.
	TTL         time.Duration
	MaxFileSize int64
	// OnExpire is called for each blob the in-memory store drops after its
	// TTL, without the store lock held. Redis expires keys on its own and
	// never calls it.
	OnExpire func(BlobMetadata)
}

func (o Options) maxSize() int64 {
	if o.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return o.MaxFileSize
}

// readLimited reads content up to limit bytes and returns it with its hash.
func readLimited(content io.Reader, limit int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", ErrFileTooLarge
	}
	h := sha256.Sum256(data)
	return data, fmt.Sprintf("%x", h), nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata  BlobMetadata
	content   []byte
	expiresAt time.Time
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore. An expired blob
// is evicted when it is next accessed, and every Upload sweeps all expired
// blobs.
type InMemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string]*storedBlob
	opts  Options
	now   func() time.Time
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore(opts Options) *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
		opts:  opts,
		now:   time.Now,
	}
}

func (s *InMemoryBlobStore) expiry(now time.Time) time.Time {
	if s.opts.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(s.opts.TTL)
}

func (b *storedBlob) expired(now time.Time) bool {
	return !b.expiresAt.IsZero() && !now.Before(b.expiresAt)
}

// lookup returns a live blob. An expired blob is deleted and appended to
// evicted. Callers hold the lock.
func (s *InMemoryBlobStore) lookup(id string, evicted *[]BlobMetadata) (*storedBlob, bool) {
	blob, ok := s.blobs[id]
	if !ok {
		return nil, false
	}
	if blob.expired(s.now()) {
		delete(s.blobs, id)
		*evicted = append(*evicted, blob.metadata)
		return nil, false
	}
	return blob, true
}

// sweep deletes every expired blob. Callers hold the lock.
func (s *InMemoryBlobStore) sweep(now time.Time, evicted *[]BlobMetadata) {
	for id, blob := range s.blobs {
		if blob.expired(now) {
			delete(s.blobs, id)
			*evicted = append(*evicted, blob.metadata)
		}
	}
}

// notify reports evicted blobs. Call after releasing the lock.
func (s *InMemoryBlobStore) notify(evicted []BlobMetadata) {
	if s.opts.OnExpire == nil {
		return
	}
	for _, m := range evicted {
		s.opts.OnExpire(m)
	}
}

// Len reports the number of blobs held, including expired ones not yet
// evicted.
func (s *InMemoryBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Upload validates inputs, reads the content, computes a SHA-256 hash, and
// stores the blob in memory.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}

	data, hash, err := readLimited(content, s.opts.maxSize())
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = hash
	meta.Revision = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now

	var evicted []BlobMetadata
	s.mu.Lock()
	s.sweep(now, &evicted)
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data, expiresAt: s.expiry(now)}
	s.mu.Unlock()
	s.notify(evicted)

	out := meta // copy
	return &out, nil
}

// Download returns an io.ReadCloser over the blob content and its metadata.
func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	var evicted []BlobMetadata
	s.mu.Lock()
	blob, ok := s.lookup(id, &evicted)
	var (
		meta    BlobMetadata
		content []byte
	)
	if ok {
		meta, content = blob.metadata, blob.content
	}
	s.mu.Unlock()
	s.notify(evicted)

	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), &meta, nil
}

func (s *InMemoryBlobStore) Replace(_ context.Context, id string, content io.Reader) (*BlobMetadata, error) {
	data, hash, err := readLimited(content, s.opts.maxSize())
	if err != nil {
		return nil, err
	}

	var evicted []BlobMetadata
	s.mu.Lock()
	defer func() { s.notify(evicted) }()
	defer s.mu.Unlock()

	blob, ok := s.lookup(id, &evicted)
	if !ok {
		return nil, ErrBlobNotFound
	}
	now := s.now().UTC()
	blob.content = data
	blob.metadata.Size = int64(len(data))
	blob.metadata.Hash = hash
	blob.metadata.Revision++
	blob.metadata.UpdatedAt = now
	blob.expiresAt = s.expiry(now)

	meta := blob.metadata
	return &meta, nil
}

// Delete removes a blob by ID. Deleting an expired blob evicts it and
// reports ErrBlobNotFound.
func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	var evicted []BlobMetadata
	s.mu.Lock()
	defer func() { s.notify(evicted) }()
	defer s.mu.Unlock()

	if _, ok := s.lookup(id, &evicted); !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// GetMetadata returns blob metadata without content.
func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	var evicted []BlobMetadata
	s.mu.Lock()
	blob, ok := s.lookup(id, &evicted)
	var meta BlobMetadata
	if ok {
		meta = blob.metadata // copy
	}
	s.mu.Unlock()
	s.notify(evicted)

	if !ok {
		return nil, ErrBlobNotFound
	}
	return &meta, nil
}
