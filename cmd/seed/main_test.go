package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/rs/zerolog"
)

func TestSeedDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"euroshop.yaml": "kind: trade-show\nfields:\n  name: EuroShop 2026\n  city: Düsseldorf\n",
		"post.yml":      "kind: blog-post\nfields:\n  title: Stand design 101\n  slug: custom-slug\n",
		"broken.yaml":   "kind: [\n",
		"nokind.yaml":   "fields:\n  name: X\n",
		"readme.md":     "# not a record\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	repo := repository.NewMemoryContentRepository(nil)
	ctx := context.Background()

	created, err := seedDir(ctx, repo, dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("seedDir failed: %v", err)
	}
	if created != 2 {
		t.Fatalf("Expected 2 records, got %d", created)
	}

	shows, _ := repo.ListAll(ctx, "trade-show")
	if len(shows) != 1 || shows[0].Slug() != "euroshop-2026" {
		t.Errorf("Expected derived slug, got %+v", shows)
	}
	posts, _ := repo.ListAll(ctx, "blog-post")
	if len(posts) != 1 || posts[0].Slug() != "custom-slug" {
		t.Errorf("Expected explicit slug kept, got %+v", posts)
	}

	if _, err := seedDir(ctx, repo, filepath.Join(dir, "missing"), zerolog.Nop()); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}
