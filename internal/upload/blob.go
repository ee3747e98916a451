package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore persists attachment bytes under a slash separated key and
// returns a stable URL for them.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// escapeKey URL-escapes each path segment of key
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// DiskStore writes blobs below a local directory. Files are served back by
// the /uploads route.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore stores under root and builds URLs as baseURL/uploads/{key}
func NewDiskStore(root, baseURL string) *DiskStore {
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Root returns the directory blobs are written to
func (d *DiskStore) Root() string {
	return d.root
}

func (d *DiskStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	fullPath := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(fullPath, filepath.Clean(d.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return d.baseURL + "/uploads/" + escapeKey(key), nil
}

// MemoryStore keeps blobs in memory. Used for development runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

// Object is a blob held by MemoryStore
type Object struct {
	ContentType string
	Data        []byte
}

// NewMemoryStore creates an empty in-memory blob store
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: buf.Bytes()}
	m.mu.Unlock()
	return m.baseURL + "/" + escapeKey(key), nil
}

// Get returns a stored blob
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys lists every stored key
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
