package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/stand-admin/internal/db"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/debemdeboas/stand-admin/internal/util/compression"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func setupTestDB(t *testing.T) *db.SQLite {
	t.Helper()
	database := db.NewSQLite(db.MemoryPath)
	if err := database.InitDB(); err != nil {
		t.Fatalf("Failed to setup test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRepo(t *testing.T) (*DBContentRepository, *media.MemoryStore) {
	t.Helper()
	store := media.NewMemoryStore()
	repo := NewDBContentRepository(setupTestDB(t), compression.ZstdCompressor{}, store)
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo.now = c.now
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return repo, store
}

func TestDBCreateUpdateFetch(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "home-page", model.Fields{
		"hero": map[string]any{"title": "Stands", "image": "https://cdn/a.png"},
		"slug": "home",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Expected a server assigned id")
	}

	updated, err := repo.Update(ctx, "home-page", created.ID, model.Fields{
		"hero": map[string]any{"title": "Better stands", "image": ""},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.ModifiedDate.After(created.ModifiedDate) {
		t.Error("Expected modified date to advance")
	}
	if !updated.CreatedDate.Equal(created.CreatedDate) {
		t.Error("Expected created date to stay")
	}

	// Bypass the cache to read what is actually stored.
	repo.records.Clear()
	fetched, err := repo.Fetch(ctx, "home-page", created.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got, _ := fetched.Fields.Get(model.MustParsePath("hero.title")); got != "Better stands" {
		t.Errorf("Expected stored title, got %v", got)
	}
	if fetched.Slug() != "home" {
		t.Errorf("Expected untouched top-level field to survive the merge, got %q", fetched.Slug())
	}

	t.Run("wrong kind is not found", func(t *testing.T) {
		if _, err := repo.Fetch(ctx, "blog-post", created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := repo.Update(ctx, "blog-post", created.ID, model.Fields{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "home-page", created.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Fetch(ctx, "home-page", created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(ctx, "home-page", created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestDBListNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	var ids []model.RecordID
	for _, name := range []string{"first", "second", "third"} {
		rec, err := repo.Create(ctx, "trade-show", model.Fields{"name": name})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	if _, err := repo.Create(ctx, "country", model.Fields{"name": "Germany"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	page, total, err := repo.List(ctx, "trade-show", 1, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Errorf("Expected newest first, got %+v", page)
	}

	page, _, _ = repo.List(ctx, "trade-show", 2, 2)
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Errorf("Expected oldest record on page 2, got %+v", page)
	}

	all, err := repo.ListAll(ctx, "trade-show")
	if err != nil || len(all) != 3 {
		t.Fatalf("Expected 3 records, got %d (%v)", len(all), err)
	}
}

func TestDBExists(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	rec, _ := repo.Create(ctx, "blog-post", model.Fields{"slug": "building-stands"})

	testCases := []struct {
		target string
		kind   model.Kind
		want   bool
	}{
		{"/blog/building-stands", "blog-post", true},
		{"https://example.com/blog/building-stands/", "blog-post", true},
		{"/blog/" + string(rec.ID), "blog-post", true},
		{"/blog/building-stands", "trade-show", false},
		{"/blog/missing", "blog-post", false},
		{"/", "blog-post", false},
	}

	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			got, err := repo.Exists(ctx, tc.kind, tc.target)
			if err != nil {
				t.Fatalf("Exists failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Exists(%s, %q) = %v, want %v", tc.kind, tc.target, got, tc.want)
			}
		})
	}
}

func TestDBUploadAndDeleteImage(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	res, err := repo.UploadImage(ctx, model.File{Name: "hero.png", Data: pngBytes}, "home-page")
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	key, ok := store.KeyFromURL(res.URL)
	if !ok || !store.Has(key) {
		t.Fatalf("Expected object for %q", res.URL)
	}

	var contentType string
	if err := repo.db.QueryRow(ctx, `SELECT content_type FROM assets WHERE url = ?`, res.URL).Scan(&contentType); err != nil {
		t.Fatalf("Expected asset ledger row: %v", err)
	}
	if contentType != "image/png" {
		t.Errorf("Expected sniffed content type image/png, got %q", contentType)
	}

	if err := repo.DeleteImage(ctx, res.URL); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	if store.Has(key) {
		t.Error("Expected object to be deleted")
	}
	if err := repo.DeleteImage(ctx, "https://elsewhere/x.png"); !errors.Is(err, media.ErrUnknownURL) {
		t.Errorf("Expected ErrUnknownURL, got %v", err)
	}
}

func TestDBSweepOrphans(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	used, _ := repo.UploadImage(ctx, model.File{Name: "used.png", Data: pngBytes}, "")
	orphan, _ := repo.UploadImage(ctx, model.File{Name: "orphan.png", Data: pngBytes}, "")

	_, err := repo.Create(ctx, "portfolio-item", model.Fields{
		"gallery": []any{map[string]any{"id": "g1", "image": used.URL}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	recent, _ := repo.UploadImage(ctx, model.File{Name: "recent.png", Data: pngBytes}, "")
	_ = recent

	// The clock advances one second per call; "recent" is the newest asset.
	removed, err := repo.SweepOrphans(ctx, 3*time.Second)
	if err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected exactly one orphan removed, got %d", removed)
	}

	for url, want := range map[string]bool{used.URL: true, orphan.URL: false, recent.URL: true} {
		key, _ := store.KeyFromURL(url)
		if store.Has(key) != want {
			t.Errorf("Object %s present=%v, want %v", url, !want, want)
		}
	}
}

func TestDBReloadNotifiesChangedRecords(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	rec, _ := repo.Create(ctx, "home-page", model.Fields{"title": "Before"})

	var mu sync.Mutex
	var notified []*model.Record
	repo.SetReloadNotifier(func(r *model.Record) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, r)
	})

	t.Run("own writes are not reported", func(t *testing.T) {
		if err := repo.Reload(ctx); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if len(notified) != 0 {
			t.Errorf("Expected no notification, got %d", len(notified))
		}
	})

	t.Run("external change is reported", func(t *testing.T) {
		// Simulate another process writing the same record.
		other := NewDBContentRepository(repo.db, repo.compressor, repo.store)
		other.now = repo.now
		if _, err := other.Update(ctx, "home-page", rec.ID, model.Fields{"title": "After"}); err != nil {
			t.Fatalf("External update failed: %v", err)
		}

		if err := repo.Reload(ctx); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if len(notified) != 1 || notified[0].ID != rec.ID {
			t.Fatalf("Expected one notification for %s, got %+v", rec.ID, notified)
		}
		if notified[0].Fields["title"] != "After" {
			t.Errorf("Expected refreshed content, got %v", notified[0].Fields["title"])
		}

		cached, _ := repo.Fetch(ctx, "home-page", rec.ID)
		if cached.Fields["title"] != "After" {
			t.Errorf("Expected cache to be refreshed, got %v", cached.Fields["title"])
		}
	})
}

func TestDBGzipCompression(t *testing.T) {
	repo := NewDBContentRepository(setupTestDB(t), compression.GzipCompressor{}, media.NewMemoryStore())
	ctx := context.Background()

	rec, err := repo.Create(ctx, "city", model.Fields{"name": "Köln"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	repo.records.Clear()
	got, err := repo.Fetch(ctx, "city", rec.ID)
	if err != nil || got.Fields["name"] != "Köln" {
		t.Errorf("Expected round trip through gzip, got %v (%v)", got, err)
	}
}

func TestDBWatchWithoutInterval(t *testing.T) {
	repo, _ := newTestRepo(t)

	done := make(chan struct{})
	go func() {
		repo.Watch(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Watch to return when no interval is set")
	}
}
