package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/google/uuid"
)

// MemoryContentRepository keeps records in process memory.
type MemoryContentRepository struct { // implements ContentRepository
	records sync.Map // model.RecordID -> *model.Record
	store   media.Store

	revalidator Revalidator

	now func() time.Time
}

func NewMemoryContentRepository(store media.Store) *MemoryContentRepository {
	if store == nil {
		store = media.NewMemoryStore()
	}
	return &MemoryContentRepository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryContentRepository) SetRevalidator(rv Revalidator) {
	r.revalidator = rv
}

func (r *MemoryContentRepository) load(kind model.Kind, id model.RecordID) (*model.Record, bool) {
	v, ok := r.records.Load(id)
	if !ok {
		return nil, false
	}
	rec := v.(*model.Record)
	if rec.Kind != kind {
		return nil, false
	}
	return rec, true
}

func (r *MemoryContentRepository) Fetch(_ context.Context, kind model.Kind, id model.RecordID) (*model.Record, error) {
	rec, ok := r.load(kind, id)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (r *MemoryContentRepository) ListAll(_ context.Context, kind model.Kind) ([]model.Record, error) {
	recs := make([]model.Record, 0)
	r.records.Range(func(_, v any) bool {
		rec := v.(*model.Record)
		if rec.Kind == kind {
			recs = append(recs, *rec.Clone())
		}
		return true
	})

	slices.SortStableFunc(recs, func(a, b model.Record) int {
		if c := -a.CreatedDate.Compare(b.CreatedDate); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return recs, nil
}

func (r *MemoryContentRepository) List(ctx context.Context, kind model.Kind, page, size int) ([]model.Record, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	all, err := r.ListAll(ctx, kind)
	if err != nil {
		return nil, 0, err
	}

	start := min((page-1)*size, len(all))
	end := min(start+size, len(all))
	return all[start:end], len(all), nil
}

func (r *MemoryContentRepository) Create(_ context.Context, kind model.Kind, fields model.Fields) (*model.Record, error) {
	now := r.now()
	rec := &model.Record{
		ID:           model.RecordID(uuid.New().String()),
		Kind:         kind,
		Fields:       mergeFields(nil, fields),
		CreatedDate:  now,
		ModifiedDate: now,
	}
	r.records.Store(rec.ID, rec)
	return rec.Clone(), nil
}

// Put stores rec as is, keeping its id and timestamps.
func (r *MemoryContentRepository) Put(rec *model.Record) {
	r.records.Store(rec.ID, rec.Clone())
}

func (r *MemoryContentRepository) Update(_ context.Context, kind model.Kind, id model.RecordID, fields model.Fields) (*model.Record, error) {
	current, ok := r.load(kind, id)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}

	rec := current.Clone()
	rec.Fields = mergeFields(current.Fields, fields)
	rec.ModifiedDate = r.now()
	r.records.Store(id, rec)
	return rec.Clone(), nil
}

func (r *MemoryContentRepository) Delete(_ context.Context, kind model.Kind, id model.RecordID) error {
	if _, ok := r.load(kind, id); !ok {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	r.records.Delete(id)
	return nil
}

func (r *MemoryContentRepository) UploadImage(ctx context.Context, file model.File, uploadContext string) (UploadResult, error) {
	obj, err := putImage(ctx, r.store, file, uploadContext, r.now())
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{URL: obj.URL}, nil
}

func (r *MemoryContentRepository) DeleteImage(ctx context.Context, url string) error {
	key, ok := r.store.KeyFromURL(url)
	if !ok {
		return fmt.Errorf("%s: %w", url, media.ErrUnknownURL)
	}
	return r.store.Delete(ctx, key)
}

func (r *MemoryContentRepository) TriggerRevalidation(ctx context.Context, path string) error {
	if r.revalidator == nil {
		return nil
	}
	return r.revalidator.Revalidate(ctx, path)
}

func (r *MemoryContentRepository) Exists(_ context.Context, kind model.Kind, target string) (bool, error) {
	seg := targetSlug(target)
	found := false
	r.records.Range(func(_, v any) bool {
		rec := v.(*model.Record)
		if rec.Kind == kind && matchesTarget(rec, seg) {
			found = true
			return false
		}
		return true
	})
	return found, nil
}
