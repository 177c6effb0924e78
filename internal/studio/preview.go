package studio

import (
	"sync"

	"github.com/google/uuid"
)

type preview struct {
	data     []byte
	mimeType string
}

// PreviewRegistry holds temporary in-memory copies of uploaded images, keyed
// by opaque handles. Every handle must be revoked by its owner once the
// upload is removed or replaced.
type PreviewRegistry struct {
	mu    sync.RWMutex
	items map[string]preview
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{items: make(map[string]preview)}
}

// Create stores data and returns its handle.
func (r *PreviewRegistry) Create(data []byte, mimeType string) string {
	handle := uuid.NewString()
	r.mu.Lock()
	r.items[handle] = preview{data: data, mimeType: mimeType}
	r.mu.Unlock()
	return handle
}

// Get returns the bytes and MIME type behind handle.
func (r *PreviewRegistry) Get(handle string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[handle]
	if !ok {
		return nil, "", false
	}
	return p.data, p.mimeType, true
}

// Revoke releases handle. Revoking an unknown or empty handle is a no-op.
func (r *PreviewRegistry) Revoke(handle string) bool {
	if handle == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[handle]; !ok {
		return false
	}
	delete(r.items, handle)
	return true
}

// Len reports how many handles are live.
func (r *PreviewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
