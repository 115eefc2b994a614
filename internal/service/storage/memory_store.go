package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
)

// MemoryStore keeps blobs in process memory for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

// NewMemoryStore creates a store serving URLs under baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string][]byte)}
}

// Put stores the bytes of r under key
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", apperrors.TransientError("upload attachment", err)
	}
	s.mu.Lock()
	s.objects[key] = buf.Bytes()
	s.mu.Unlock()
	return s.URL(ctx, key)
}

// PresignUpload returns a pseudo upload URL. Callers store the object with Put.
func (s *MemoryStore) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	return s.baseURL + "/upload/" + key, time.Now().Add(constants.PresignedURLExpiry), nil
}

// Stat returns the size of a stored object
func (s *MemoryStore) Stat(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return 0, apperrors.NotFoundError("attachment")
	}
	return int64(len(data)), nil
}

// URL returns the retrieval URL of key
func (s *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	return s.baseURL + "/" + key, nil
}

// Object returns the stored bytes of key
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
