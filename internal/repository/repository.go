// Package repository reads and writes content records and their media.
package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("record not found")

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

// UploadResult is the permanent location of an uploaded image.
type UploadResult struct {
	URL string `json:"url"`
}

type ContentRepository interface {
	Fetch(ctx context.Context, kind model.Kind, id model.RecordID) (*model.Record, error)
	// List returns one page (1-based) of records, newest first, and the total count.
	List(ctx context.Context, kind model.Kind, page, size int) ([]model.Record, int, error)
	ListAll(ctx context.Context, kind model.Kind) ([]model.Record, error)

	Create(ctx context.Context, kind model.Kind, fields model.Fields) (*model.Record, error)
	// Update merges fields into the stored record at the top level.
	Update(ctx context.Context, kind model.Kind, id model.RecordID, fields model.Fields) (*model.Record, error)
	Delete(ctx context.Context, kind model.Kind, id model.RecordID) error

	UploadImage(ctx context.Context, file model.File, uploadContext string) (UploadResult, error)
	DeleteImage(ctx context.Context, url string) error
	TriggerRevalidation(ctx context.Context, path string) error

	// Exists reports whether target (a URL or path) resolves to a record of kind.
	Exists(ctx context.Context, kind model.Kind, target string) (bool, error)
}

// Revalidator invalidates cached public pages.
type Revalidator interface {
	Revalidate(ctx context.Context, path string) error
}

// DetectContentType sniffs data and returns its MIME type without parameters.
func DetectContentType(data []byte) string {
	ct := mimetype.Detect(data).String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func putImage(ctx context.Context, store media.Store, file model.File, uploadContext string, now time.Time) (media.Object, error) {
	ct := DetectContentType(file.Data)
	key := media.ObjectKey(uploadContext, file.Name, ct, now)
	obj, err := store.Put(ctx, key, ct, file.Data)
	if err != nil {
		return media.Object{}, fmt.Errorf("error uploading %s: %w", file.Name, err)
	}
	return obj, nil
}

// targetSlug extracts the last path segment of a redirect target:
// "https://site/blog/my-post?x=1" and "/blog/my-post/" both give "my-post".
func targetSlug(target string) string {
	p := target
	if u, err := url.Parse(target); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

func matchesTarget(rec *model.Record, seg string) bool {
	return seg != "" && (rec.Slug() == seg || string(rec.ID) == seg)
}

// mergeFields applies a partial top-level update onto a copy of base.
func mergeFields(base, update model.Fields) model.Fields {
	out := base.Clone()
	for k, v := range update {
		out[k] = model.CloneValue(v)
	}
	delete(out, "id")
	return out
}

// collectStrings walks v and adds every string leaf to set.
func collectStrings(v any, set map[string]struct{}) {
	switch t := v.(type) {
	case string:
		if t != "" {
			set[t] = struct{}{}
		}
	case model.Fields:
		for _, vv := range t {
			collectStrings(vv, set)
		}
	case map[string]any:
		for _, vv := range t {
			collectStrings(vv, set)
		}
	case []any:
		for _, vv := range t {
			collectStrings(vv, set)
		}
	}
}
