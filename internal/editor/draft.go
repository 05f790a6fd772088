package editor

import (
	"encoding/json"

	"github.com/debemdeboas/stand-admin/internal/model"
)

// File is a selected file that has not been uploaded.
type File = model.File

// Draft is an immutable snapshot of the fields being edited. With returns a
// new Draft; the receiver and everything it was built from stay untouched.
type Draft struct {
	fields model.Fields
}

func NewDraft(fields model.Fields) Draft {
	return Draft{fields: fields.Clone()}
}

func (d Draft) Get(p model.Path) (any, bool) {
	return d.fields.Get(p)
}

// GetString returns the string at p, or "" if there is none.
func (d Draft) GetString(p model.Path) string {
	v, _ := d.fields.Get(p)
	s, _ := v.(string)
	return s
}

func (d Draft) With(p model.Path, value any) (Draft, error) {
	f := d.fields
	if f == nil {
		f = model.Fields{}
	}
	out, err := f.With(p, value)
	if err != nil {
		return d, err
	}
	return Draft{fields: out}, nil
}

// Fields returns a deep copy of the draft's fields.
func (d Draft) Fields() model.Fields {
	return d.fields.Clone()
}

func (d Draft) MarshalJSON() ([]byte, error) {
	if d.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.fields)
}
