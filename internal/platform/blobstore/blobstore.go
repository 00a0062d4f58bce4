// Package blobstore stores uploaded document content. Metadata lives in the
// documents table; this package only deals with bytes addressed by key.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// MaxFileSize is the largest accepted upload (25 MB).
const MaxFileSize = 25 * 1024 * 1024

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// AllowedContentTypes lists the document formats clinics upload.
var AllowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"image/png":          true,
	"image/jpeg":         true,
	"image/tiff":         true,
	"text/plain":         true,
	docxContentType:      true,
}

// Object describes stored content.
type Object struct {
	Key    string
	Size   int64
	SHA256 string
}

// BlobStore is implemented by every storage backend.
type BlobStore interface {
	Put(ctx context.Context, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// newKey returns a key sharded by its first two byte pairs, e.g. "3f/a2/3fa2...".
func newKey() string {
	id := uuid.NewString()
	return id[0:2] + "/" + id[2:4] + "/" + id
}

// validKey guards against keys that were not produced by newKey.
func validKey(key string) bool {
	if len(key) != 42 || key[2] != '/' || key[5] != '/' {
		return false
	}
	id, err := uuid.Parse(key[6:])
	return err == nil && key[0:2] == id.String()[0:2] && key[3:5] == id.String()[2:4]
}

// hashingReader counts and hashes content while enforcing MaxFileSize.
type hashingReader struct {
	r    io.Reader
	h    sumWriter
	size int64
}

type sumWriter interface {
	io.Writer
	Sum(b []byte) []byte
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: io.LimitReader(r, MaxFileSize+1), h: sha256.New()}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.size += int64(n)
		if h.size > MaxFileSize {
			return 0, ErrFileTooLarge
		}
		_, _ = h.h.Write(p[:n])
	}
	return n, err
}

func (h *hashingReader) object(key string) *Object {
	return &Object{Key: key, Size: h.size, SHA256: hex.EncodeToString(h.h.Sum(nil))}
}

// MemoryStore keeps blobs in memory. It backs tests and throwaway dev setups.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, content io.Reader) (*Object, error) {
	hr := newHashingReader(content)
	data, err := io.ReadAll(hr)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}
	key := newKey()
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return hr.object(key), nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
