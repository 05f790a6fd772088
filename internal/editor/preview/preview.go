// Package preview holds staged file bytes behind transient handles so they
// can be displayed before upload.
package preview

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/debemdeboas/stand-admin/internal/cache"
	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/google/uuid"
)

// URLPrefix is where handles are served.
const URLPrefix = "/previews/"

var ErrUnknownHandle = errors.New("unknown preview handle")

// Handle is a preview URL such as "/previews/<uuid>".
type Handle string

func (h Handle) id() string {
	return strings.TrimPrefix(string(h), URLPrefix)
}

// IsHandle reports whether s looks like a preview handle URL.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, URLPrefix)
}

type Store interface {
	Create(contentType string, data []byte) (Handle, error)
	// Release frees a handle. Releasing the same handle twice returns ErrUnknownHandle.
	Release(h Handle) error
}

type entry struct {
	contentType string
	data        []byte
}

// MemoryStore keeps previews in memory and serves them over HTTP.
type MemoryStore struct {
	entries *cache.Cache[string, entry]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: cache.NewCache[string, entry](),
	}
}

func (s *MemoryStore) Create(contentType string, data []byte) (Handle, error) {
	id := uuid.New().String()
	s.entries.Set(id, entry{contentType: contentType, data: data})
	return Handle(URLPrefix + id), nil
}

func (s *MemoryStore) Release(h Handle) error {
	if _, ok := s.entries.Take(h.id()); !ok {
		return ErrUnknownHandle
	}
	return nil
}

// Len returns the number of live handles.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}

// ServeHTTP serves routes registered as "/previews/{handle}".
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entries.Get(r.PathValue("handle"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set(config.HCType, e.contentType)
	w.Header().Set(config.HCacheControl, "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.data)))
	w.Write(e.data)
}
