package editor

import (
	"context"
	"errors"

	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/redirect"
)

// Rule is checked against the draft before a commit uploads anything.
type Rule interface {
	Check(ctx context.Context, d Draft) error
}

// RedirectRule requires the URL at Path to be well formed and to resolve.
// A failing lookup is returned as is; only a bad URL is a ValidationError.
type RedirectRule struct {
	Path      string
	Validator redirect.Validator
}

func (r RedirectRule) Check(ctx context.Context, d Draft) error {
	p, err := model.ParsePath(r.Path)
	if err != nil {
		return &ValidationError{Path: r.Path, Err: err}
	}
	err = r.Validator.Validate(ctx, d.GetString(p))
	var (
		format   *redirect.FormatError
		notFound *redirect.NotFoundError
	)
	if errors.As(err, &format) || errors.As(err, &notFound) {
		return &ValidationError{Path: r.Path, Err: err}
	}
	return err
}

// AutoSlug keeps Target equal to slug.Make(Source) until Target is edited
// by hand to something else.
type AutoSlug struct {
	Source string
	Target string
}
