// Package model defines the content records edited through the admin panel.
package model

import (
	"slices"
	"time"
)

type RecordID string

// Kind names a content type, for example "blog-post" or "home-page".
type Kind string

// Fields holds a record's content keyed by field name. Values are scalars,
// nested sections (map[string]any) or lists of sub-records ([]any).
type Fields map[string]any

type Record struct {
	ID   RecordID `json:"id"`
	Kind Kind     `json:"kind"`

	Fields Fields `json:"fields"`

	// Hash of the stored payload, used to detect background changes.
	ContentHash string `json:"-"`

	CreatedDate  time.Time `json:"created_at"`
	ModifiedDate time.Time `json:"modified_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = r.Fields.Clone()
	return &c
}

// Slug returns the record's "slug" field, if it has one.
func (r *Record) Slug() string {
	s, _ := r.Fields["slug"].(string)
	return s
}

// Clone returns a deep copy of f. Nested sections and lists are copied too.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = CloneValue(v)
	}
	return out
}

func CloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return map[string]any(t.Clone())
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = CloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = CloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// IsNew reports whether a list item has not been created on the server yet,
// that is, it carries no non-empty "id".
func IsNew(item any) bool {
	m, ok := asMap(item)
	if !ok {
		return true
	}
	id, _ := m["id"].(string)
	return id == ""
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Fields:
		return t, true
	case map[string]any:
		return t, true
	}
	return nil, false
}

// WalkStrings calls fn for every string inside v, in key and index order.
// at is the path of v itself. Paths passed to fn are not reused.
func WalkStrings(v any, at Path, fn func(Path, string)) {
	switch t := v.(type) {
	case string:
		fn(append(Path(nil), at...), t)
	case []any:
		for i, item := range t {
			WalkStrings(item, append(at[:len(at):len(at)], Segment{Index: i, IsIndex: true}), fn)
		}
	default:
		m, ok := asMap(v)
		if !ok {
			return
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			WalkStrings(m[k], append(at[:len(at):len(at)], Segment{Key: k}), fn)
		}
	}
}
