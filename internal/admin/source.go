package admin

import (
	"context"
	"time"

	"github.com/debemdeboas/stand-admin/internal/listing"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository"
)

// recordSource pages through the records of one kind.
type recordSource struct {
	repo repository.ContentRepository
	kind model.Kind
}

func (s recordSource) Page(ctx context.Context, page, size int) ([]model.Record, int, error) {
	return s.repo.List(ctx, s.kind, page, size)
}

func (s recordSource) All(ctx context.Context) ([]model.Record, error) {
	return s.repo.ListAll(ctx, s.kind)
}

func (s recordSource) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, s.kind, model.RecordID(id))
}

func newOverlay(repo repository.ContentRepository, def KindDef, pageSize int) *listing.Overlay[model.Record] {
	return listing.New[model.Record](recordSource{repo: repo, kind: def.Kind}, listing.Options[model.Record]{
		PageSize: pageSize,
		Fields: func(rec model.Record) []string {
			out := make([]string, 0, len(def.SearchFields)+1)
			out = append(out, string(rec.ID))
			for _, name := range def.SearchFields {
				if s, ok := rec.Fields[name].(string); ok {
					out = append(out, s)
				}
			}
			return out
		},
		CreatedAt: func(rec model.Record) time.Time {
			return rec.CreatedDate
		},
	})
}
