package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/debemdeboas/stand-admin/internal/editor/preview"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"github.com/debemdeboas/stand-admin/internal/repository"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngFile(name string) File {
	return File{Name: name, ContentType: "image/png", Data: pngData}
}

type fakeRepo struct {
	mu sync.Mutex

	uploads     []string
	failUploads map[string]error // by file name
	// When set, every upload waits for the gate after signalling started.
	started chan string
	gate    chan struct{}

	creates   int
	updates   int
	updateErr error
	saved     model.Fields

	deleted       []string
	revalidated   []string
	revalidateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{failUploads: map[string]error{}}
}

func (f *fakeRepo) Create(_ context.Context, kind model.Kind, fields model.Fields) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.saved = fields.Clone()
	return &model.Record{ID: "created-1", Kind: kind, Fields: fields.Clone()}, nil
}

func (f *fakeRepo) Update(_ context.Context, kind model.Kind, id model.RecordID, fields model.Fields) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.saved = fields.Clone()
	return &model.Record{ID: id, Kind: kind, Fields: fields.Clone()}, nil
}

func (f *fakeRepo) UploadImage(ctx context.Context, file model.File, _ string) (repository.UploadResult, error) {
	if f.started != nil {
		f.started <- file.Name
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, file.Name)
	if err := f.failUploads[file.Name]; err != nil {
		return repository.UploadResult{}, err
	}
	return repository.UploadResult{URL: "https://cdn/" + file.Name}, nil
}

func (f *fakeRepo) DeleteImage(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

func (f *fakeRepo) TriggerRevalidation(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revalidated = append(f.revalidated, path)
	return f.revalidateErr
}

func (f *fakeRepo) count() (uploads, creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads), f.creates, f.updates
}

// countingPreviews wraps the real store and counts releases per handle.
type countingPreviews struct {
	*preview.MemoryStore

	mu        sync.Mutex
	releases  map[preview.Handle]int
	createErr error
}

func newCountingPreviews() *countingPreviews {
	return &countingPreviews{
		MemoryStore: preview.NewMemoryStore(),
		releases:    map[preview.Handle]int{},
	}
}

func (c *countingPreviews) Create(contentType string, data []byte) (preview.Handle, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.MemoryStore.Create(contentType, data)
}

func (c *countingPreviews) Release(h preview.Handle) error {
	c.mu.Lock()
	c.releases[h]++
	c.mu.Unlock()
	return c.MemoryStore.Release(h)
}

func (c *countingPreviews) released(h preview.Handle) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases[h]
}

// doubleReleases reports a handle released more than once.
func (c *countingPreviews) doubleReleases() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, n := range c.releases {
		if n > 1 {
			return fmt.Errorf("handle %s released %d times", h, n)
		}
	}
	return nil
}

type fixture struct {
	ed       *Editor
	repo     *fakeRepo
	previews *countingPreviews
	notes    *notify.Recorder
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		repo:     newFakeRepo(),
		previews: newCountingPreviews(),
		notes:    &notify.Recorder{},
	}
	f.ed = New("home-page", f.repo, f.previews, f.notes, opts)
	return f
}

func homeRecord() *model.Record {
	return &model.Record{
		ID:   "a",
		Kind: "home-page",
		Fields: model.Fields{
			"hero": map[string]any{
				"title":    "Stands that sell",
				"image":    "https://cdn/old-hero.png",
				"imageAlt": "Old hero",
			},
			"logo": "https://cdn/old-logo.png",
			"stats": []any{
				map[string]any{"id": "s1", "label": "Projects"},
			},
		},
	}
}

var errUploadFailed = errors.New("upload failed: 503")
