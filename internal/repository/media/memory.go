package media

import (
	"context"

	"github.com/debemdeboas/stand-admin/internal/cache"
)

// MemoryStore keeps objects in process memory. URLs use the "memory://" scheme.
type MemoryStore struct {
	objects *cache.Cache[string, []byte]
}

const memoryBase = "memory://media/"

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: cache.NewCache[string, []byte](),
	}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (Object, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects.Set(key, buf)
	return Object{
		Key:         key,
		URL:         memoryBase + key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.objects.Delete(key)
	return nil
}

func (s *MemoryStore) KeyFromURL(url string) (string, bool) {
	return trimBase(memoryBase, url)
}

// Has reports whether key is stored.
func (s *MemoryStore) Has(key string) bool {
	_, ok := s.objects.Get(key)
	return ok
}

func (s *MemoryStore) Len() int {
	return s.objects.Len()
}
