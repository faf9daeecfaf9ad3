package sandbox

import (
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// blob is the content behind an object URL
type blob struct {
	data     string
	mimeType string
}

// blobStore holds the object URLs minted by one document
type blobStore struct {
	mu      sync.RWMutex
	entries map[string]blob
}

func newBlobStore() *blobStore {
	return &blobStore{entries: make(map[string]blob)}
}

// register mints blob:<origin>/<uuid> for data
func (s *blobStore) register(origin, data, mimeType string) string {
	objectURL := "blob:" + origin + "/" + uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[objectURL] = blob{data: data, mimeType: mimeType}
	return objectURL
}

func (s *blobStore) revoke(objectURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, objectURL)
}

func (s *blobStore) lookup(objectURL string) (blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.entries[objectURL]
	return b, ok
}

func (s *blobStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]blob)
}

// originOf serialises the origin of a document URL; opaque origins are "null"
func originOf(documentURL string) string {
	u, err := url.Parse(documentURL)
	if err != nil || u.Host == "" {
		return "null"
	}
	switch u.Scheme {
	case "http", "https":
		return u.Scheme + "://" + u.Host
	default:
		return "null"
	}
}
