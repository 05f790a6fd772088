// Package listing pages through a server-paginated collection and adds a
// global search over the full set.
package listing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Source is a paged collection.
type Source[T any] interface {
	// Page returns the 1-based page of the given size and the total count.
	Page(ctx context.Context, page, size int) ([]T, int, error)
	All(ctx context.Context) ([]T, error)
	Delete(ctx context.Context, id string) error
}

type Options[T any] struct {
	PageSize int

	// Fields returns the searchable text of an item.
	Fields func(T) []string
	// CreatedAt orders items, newest first.
	CreatedAt func(T) time.Time
}

// Overlay is the state of one list screen. It is not safe for concurrent use.
type Overlay[T any] struct {
	src  Source[T]
	opts Options[T]

	page  int
	total int
	items []T

	term string
	full []T // whole collection while searching
}

func New[T any](src Source[T], opts Options[T]) *Overlay[T] {
	if opts.PageSize < 1 {
		opts.PageSize = 10
	}
	return &Overlay[T]{
		src:  src,
		opts: opts,
		page: 1,
	}
}

// Load fetches the current page.
func (o *Overlay[T]) Load(ctx context.Context) error {
	return o.fetch(ctx, o.page)
}

// GoTo moves to page. Pages below 1 or past TotalPages are ignored.
func (o *Overlay[T]) GoTo(ctx context.Context, page int) error {
	if page < 1 || page > o.TotalPages() || page == o.page {
		return nil
	}
	return o.fetch(ctx, page)
}

// Search filters the whole collection by term, case-insensitively. An empty
// term returns to server pagination.
func (o *Overlay[T]) Search(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	o.term = term
	o.page = 1
	if term == "" {
		o.full = nil
		return o.fetch(ctx, 1)
	}

	all, err := o.src.All(ctx)
	if err != nil {
		return fmt.Errorf("error fetching collection: %w", err)
	}
	o.full = all
	return o.fetch(ctx, 1)
}

// Delete removes an item and refetches, stepping back to the new last page
// if the current one disappeared.
func (o *Overlay[T]) Delete(ctx context.Context, id string) error {
	if err := o.src.Delete(ctx, id); err != nil {
		return err
	}

	if o.Searching() {
		all, err := o.src.All(ctx)
		if err != nil {
			return fmt.Errorf("error fetching collection: %w", err)
		}
		o.full = all
	}

	if err := o.fetch(ctx, o.page); err != nil {
		return err
	}
	if last := o.TotalPages(); o.page > last {
		return o.fetch(ctx, last)
	}
	return nil
}

func (o *Overlay[T]) fetch(ctx context.Context, page int) error {
	size := o.opts.PageSize

	if o.Searching() {
		matched := o.filter(o.full)
		o.sort(matched)
		start := min((page-1)*size, len(matched))
		end := min(start+size, len(matched))
		o.items = matched[start:end]
		o.total = len(matched)
		o.page = page
		return nil
	}

	items, total, err := o.src.Page(ctx, page, size)
	if err != nil {
		return fmt.Errorf("error fetching page %d: %w", page, err)
	}
	o.sort(items)
	o.items = items
	o.total = total
	o.page = page
	return nil
}

func (o *Overlay[T]) filter(all []T) []T {
	needle := strings.ToLower(o.term)
	out := make([]T, 0, len(all))
	for _, item := range all {
		if o.opts.Fields == nil {
			continue
		}
		for _, f := range o.opts.Fields(item) {
			if strings.Contains(strings.ToLower(f), needle) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func (o *Overlay[T]) sort(items []T) {
	if o.opts.CreatedAt == nil {
		return
	}
	slices.SortStableFunc(items, func(a, b T) int {
		return o.opts.CreatedAt(b).Compare(o.opts.CreatedAt(a))
	})
}

func (o *Overlay[T]) Items() []T {
	return o.items
}

func (o *Overlay[T]) Page() int {
	return o.page
}

func (o *Overlay[T]) Total() int {
	return o.total
}

// TotalPages is at least 1, even for an empty collection.
func (o *Overlay[T]) TotalPages() int {
	return max(1, (o.total+o.opts.PageSize-1)/o.opts.PageSize)
}

func (o *Overlay[T]) Term() string {
	return o.term
}

func (o *Overlay[T]) Searching() bool {
	return o.term != ""
}
