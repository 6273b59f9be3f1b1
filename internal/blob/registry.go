package blob

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// URLScheme prefixes every object URL handed out by a URLRegistry.
const URLScheme = "blob:vocalforge/"

// URLRegistry maps opaque object URLs to blobs. A URL stays resolvable until
// it is revoked.
type URLRegistry struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
}

func NewURLRegistry() *URLRegistry {
	return &URLRegistry{blobs: make(map[string]*Blob)}
}

// Create registers b and returns its object URL.
func (r *URLRegistry) Create(b *Blob) string {
	url := URLScheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = b
	r.mu.Unlock()
	return url
}

// Resolve returns the blob behind url. Both the full URL and its bare token
// are accepted.
func (r *URLRegistry) Resolve(url string) (*Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[normalize(url)]
	return b, ok
}

// Revoke releases url. Revoking an unknown or already revoked URL is a no-op.
func (r *URLRegistry) Revoke(url string) {
	if url == "" {
		return
	}
	r.mu.Lock()
	delete(r.blobs, normalize(url))
	r.mu.Unlock()
}

// Len reports the number of live URLs.
func (r *URLRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Token strips the scheme from an object URL.
func Token(url string) string {
	return strings.TrimPrefix(url, URLScheme)
}

func normalize(url string) string {
	if strings.HasPrefix(url, URLScheme) {
		return url
	}
	return URLScheme + url
}
