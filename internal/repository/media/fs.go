package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// FSStore keeps media in a local directory and serves it under BaseURL.
type FSStore struct {
	dir     string
	baseURL string
}

func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating media directory: %w", err)
	}
	return &FSStore{
		dir:     dir,
		baseURL: withSlash(baseURL),
	}, nil
}

func (s *FSStore) localPath(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(path.Clean("/"+key)))
}

func (s *FSStore) Put(_ context.Context, key, contentType string, data []byte) (Object, error) {
	p := s.localPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Object{}, fmt.Errorf("error creating media directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("error writing media file: %w", err)
	}

	mediaLogger.Debug().Str("key", key).Int("size", len(data)).Msg("Media file written")

	return Object{
		Key:         key,
		URL:         s.baseURL + key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.localPath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error deleting media file: %w", err)
	}
	return nil
}

func (s *FSStore) KeyFromURL(url string) (string, bool) {
	return trimBase(s.baseURL, url)
}

// ServeHTTP serves stored files for routes registered as "/media/{key...}".
func (s *FSStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.localPath(key))
}
