// Package media stores uploaded image bytes and maps them to public URLs.
package media

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrUnknownURL = errors.New("url does not belong to this media store")

var mediaLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	mediaLogger = l
}

// Object describes a stored file.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)
	Delete(ctx context.Context, key string) error

	// KeyFromURL maps a public URL produced by Put back to its object key.
	KeyFromURL(url string) (string, bool)
}

// ObjectKey builds "images/<context>/<yyyy>/<mm>/<uuid><ext>". The extension
// comes from the content type, falling back to the original file name.
func ObjectKey(uploadContext, name, contentType string, now time.Time) string {
	ext := ""
	if m := mimetype.Lookup(contentType); m != nil {
		ext = m.Extension()
	}
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(name))
	}

	parts := []string{"images"}
	if c := cleanSegment(uploadContext); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, now.UTC().Format("2006"), now.UTC().Format("01"), uuid.New().String()+ext)
	return path.Join(parts...)
}

func cleanSegment(s string) string {
	return strings.Trim(path.Clean("/"+s), "/")
}

func trimBase(base, url string) (string, bool) {
	if base == "" || !strings.HasPrefix(url, base) {
		return "", false
	}
	key := strings.TrimPrefix(url, base)
	if key == "" {
		return "", false
	}
	return key, true
}

func withSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
