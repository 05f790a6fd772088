// Package redirect validates redirect URLs stored on content records.
package redirect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/debemdeboas/stand-admin/internal/model"
)

// Checker resolves a target to an existing record of the given kind.
type Checker interface {
	Exists(ctx context.Context, kind model.Kind, target string) (bool, error)
}

type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%q is not an absolute URL or a path starting with /", e.Value)
}

type NotFoundError struct {
	Kind  model.Kind
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found at %q", e.Kind, e.Value)
}

// Validator checks redirect targets that must point at records of Kind.
type Validator struct {
	Kind    model.Kind
	Checker Checker
}

// Validate accepts an empty value. Otherwise the format is checked first and
// the existence check only runs for well-formed values.
func (v Validator) Validate(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if !WellFormed(value) {
		return &FormatError{Value: value}
	}

	ok, err := v.Checker.Exists(ctx, v.Kind, value)
	if err != nil {
		return fmt.Errorf("error checking redirect target: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: v.Kind, Value: value}
	}
	return nil
}

// WellFormed reports whether s is an absolute http(s) URL with a host or a
// path starting with a single "/".
func WellFormed(s string) bool {
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	if strings.HasPrefix(s, "/") {
		if strings.HasPrefix(s, "//") {
			return false
		}
		_, err := url.ParseRequestURI(s)
		return err == nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
