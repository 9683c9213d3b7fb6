package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dicom-tools:blob:"

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisBlobStore stores metadata and content under two keys sharing the
// blob TTL.
type RedisBlobStore struct {
	client *redis.Client
	opts   Options
}

// NewRedisBlobStore wraps an existing client. The client lifecycle is managed
// by the caller.
func NewRedisBlobStore(client *redis.Client, opts Options) *RedisBlobStore {
	return &RedisBlobStore{client: client, opts: opts}
}

func metaKey(id string) string { return keyPrefix + id + ":meta" }
func dataKey(id string) string { return keyPrefix + id + ":data" }

func (s *RedisBlobStore) write(ctx context.Context, meta *BlobMetadata, data []byte) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode blob metadata: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, metaKey(meta.ID), encoded, s.opts.TTL)
		pipe.Set(ctx, dataKey(meta.ID), data, s.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store blob %s: %w", meta.ID, err)
	}
	return nil
}

func (s *RedisBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	data, hash, err := readLimited(content, s.opts.maxSize())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = hash
	meta.Revision = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now

	if err := s.write(ctx, &meta, data); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *RedisBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.client.Get(ctx, dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load blob %s: %w", id, err)
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

func (s *RedisBlobStore) Replace(ctx context.Context, id string, content io.Reader) (*BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	data, hash, err := readLimited(content, s.opts.maxSize())
	if err != nil {
		return nil, err
	}
	meta.Size = int64(len(data))
	meta.Hash = hash
	meta.Revision++
	meta.UpdatedAt = time.Now().UTC()

	if err := s.write(ctx, meta, data); err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *RedisBlobStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, metaKey(id), dataKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	if n == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *RedisBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	raw, err := s.client.Get(ctx, metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load blob metadata %s: %w", id, err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode blob metadata %s: %w", id, err)
	}
	return &meta, nil
}
