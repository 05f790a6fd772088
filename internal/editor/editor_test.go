package editor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/debemdeboas/stand-admin/internal/editor/preview"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"github.com/debemdeboas/stand-admin/internal/redirect"
)

func TestInitialize(t *testing.T) {
	f := newFixture(Options{})
	rec := homeRecord()

	if !f.ed.Initialize(rec) {
		t.Fatal("Expected first Initialize to seed the draft")
	}

	t.Run("setField never mutates the record", func(t *testing.T) {
		snapshot := rec.Clone()
		if err := f.ed.SetField("hero.title", "X"); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if err := f.ed.SetField("stats[0].label", "Stands built"); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if err := f.ed.SetField("stats[1]", map[string]any{"label": "Countries"}); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if !reflect.DeepEqual(rec, snapshot) {
			t.Error("Record passed to Initialize was mutated")
		}
	})

	t.Run("refresh of the same record keeps edits", func(t *testing.T) {
		refreshed := homeRecord()
		refreshed.Fields["hero"].(map[string]any)["title"] = "Changed elsewhere"

		if f.ed.Initialize(refreshed) {
			t.Error("Expected refresh with the same id to be ignored")
		}
		if got := f.ed.Draft().GetString(model.MustParsePath("hero.title")); got != "X" {
			t.Errorf("Expected edited title X to survive, got %q", got)
		}
	})

	t.Run("a different record reseeds and drops staged files", func(t *testing.T) {
		if err := f.ed.StageImage("hero.image", pngFile("new.png")); err != nil {
			t.Fatalf("StageImage failed: %v", err)
		}
		handle := preview.Handle(f.ed.Draft().GetString(model.MustParsePath("hero.image")))

		other := homeRecord()
		other.ID = "b"
		if !f.ed.Initialize(other) {
			t.Fatal("Expected a new id to reseed")
		}
		if len(f.ed.Staged()) != 0 {
			t.Errorf("Expected no staged files, got %v", f.ed.Staged())
		}
		if f.previews.released(handle) != 1 {
			t.Errorf("Expected stale preview released once, got %d", f.previews.released(handle))
		}
		if got := f.ed.Draft().GetString(model.MustParsePath("hero.title")); got != "Stands that sell" {
			t.Errorf("Expected reseeded title, got %q", got)
		}
	})
}

func TestSetFieldErrors(t *testing.T) {
	f := newFixture(Options{})
	f.ed.Initialize(homeRecord())
	before := f.ed.Draft()

	var vErr *ValidationError
	if err := f.ed.SetField("hero..title", "x"); !errors.As(err, &vErr) {
		t.Errorf("Expected ValidationError for bad path, got %v", err)
	}
	if err := f.ed.SetField("stats[7].label", "x"); !errors.As(err, &vErr) {
		t.Errorf("Expected ValidationError for out of range index, got %v", err)
	}
	if !reflect.DeepEqual(before, f.ed.Draft()) {
		t.Error("Failed SetField changed the draft")
	}
	if n := len(f.notes.Drain()); n != 2 {
		t.Errorf("Expected one notification per failed action, got %d", n)
	}
}

func TestStageImage(t *testing.T) {
	t.Run("oversized file is rejected", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(homeRecord())
		before := f.ed.Draft()

		big := File{Name: "huge.png", ContentType: "image/png", Data: make([]byte, 60_000_000)}
		copy(big.Data, pngData)

		err := f.ed.StageImage("hero.image", big)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
		if !strings.Contains(err.Error(), "limit") {
			t.Errorf("Expected a size error, got %q", err.Error())
		}
		if !reflect.DeepEqual(before, f.ed.Draft()) {
			t.Error("Draft changed")
		}
		if len(f.ed.Staged()) != 0 || f.previews.Len() != 0 {
			t.Error("Expected nothing staged")
		}
		notes := f.notes.Drain()
		if len(notes) != 1 || notes[0].Level != notify.LevelError {
			t.Errorf("Expected one error notification, got %+v", notes)
		}
	})

	t.Run("non-image is rejected whatever it claims to be", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(homeRecord())

		err := f.ed.StageImage("hero.image", File{Name: "x.png", ContentType: "image/png", Data: []byte("%PDF-1.4 not an image")})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
		if f.ed.FieldState("hero.image") != StatePersisted {
			t.Error("Expected field to stay persisted")
		}
	})

	t.Run("restaging releases the previous preview exactly once", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(homeRecord())

		_ = f.ed.StageImage("hero.image", pngFile("one.png"))
		first := preview.Handle(f.ed.Draft().GetString(model.MustParsePath("hero.image")))
		_ = f.ed.StageImage("hero.image", pngFile("two.png"))
		second := preview.Handle(f.ed.Draft().GetString(model.MustParsePath("hero.image")))

		if first == second || !preview.IsHandle(string(second)) {
			t.Fatalf("Expected a new preview handle, got %q then %q", first, second)
		}
		if f.previews.released(first) != 1 || f.previews.released(second) != 0 {
			t.Errorf("Unexpected releases: first=%d second=%d", f.previews.released(first), f.previews.released(second))
		}
		if got := f.ed.Staged(); !reflect.DeepEqual(got, []string{"hero.image"}) {
			t.Errorf("Expected one staged path, got %v", got)
		}
		if f.ed.FieldState("hero.image") != StateStaged {
			t.Errorf("Expected staged state, got %s", f.ed.FieldState("hero.image"))
		}
		if n := len(f.notes.Drain()); n != 0 {
			t.Errorf("Expected no notifications for successful staging, got %d", n)
		}
	})

	t.Run("preview failure leaves state unchanged", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(homeRecord())
		f.previews.createErr = errors.New("out of memory")

		if err := f.ed.StageImage("hero.image", pngFile("a.png")); err == nil {
			t.Fatal("Expected error")
		}
		if f.ed.Draft().GetString(model.MustParsePath("hero.image")) != "https://cdn/old-hero.png" {
			t.Error("Draft changed")
		}
	})

	t.Run("no upload happens while staging", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(homeRecord())
		_ = f.ed.StageImage("hero.image", pngFile("a.png"))
		_ = f.ed.StageImage("logo", pngFile("b.png"))
		if uploads, _, _ := f.repo.count(); uploads != 0 {
			t.Errorf("Expected no uploads before commit, got %d", uploads)
		}
	})
}

func TestRemoveImage(t *testing.T) {
	f := newFixture(Options{DeleteReplacedImages: true})
	f.ed.Initialize(homeRecord())

	_ = f.ed.StageImage("hero.image", pngFile("a.png"))
	handle := preview.Handle(f.ed.Draft().GetString(model.MustParsePath("hero.image")))

	if err := f.ed.RemoveImage("hero.image"); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}
	if f.previews.released(handle) != 1 {
		t.Errorf("Expected staged preview released once, got %d", f.previews.released(handle))
	}
	if f.ed.FieldState("hero.image") != StateRemoved {
		t.Errorf("Expected removed state, got %s", f.ed.FieldState("hero.image"))
	}
	d := f.ed.Draft()
	if d.GetString(model.MustParsePath("hero.image")) != "" || d.GetString(model.MustParsePath("hero.imageAlt")) != "" {
		t.Error("Expected image and alt text cleared")
	}

	if err := f.ed.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	got, _ := f.repo.saved.Get(model.MustParsePath("hero.image"))
	if got != "" {
		t.Errorf("Expected persisted empty image, got %v", got)
	}
	if uploads, _, updates := f.repo.count(); uploads != 0 || updates != 1 {
		t.Errorf("Expected no uploads and one update, got %d and %d", uploads, updates)
	}
	if !reflect.DeepEqual(f.repo.deleted, []string{"https://cdn/old-hero.png"}) {
		t.Errorf("Expected the removed image to be deleted, got %v", f.repo.deleted)
	}
	if f.ed.FieldState("hero.image") != StatePersisted {
		t.Errorf("Expected persisted state after commit, got %s", f.ed.FieldState("hero.image"))
	}
}

func TestRemoveImageWithoutAltSibling(t *testing.T) {
	f := newFixture(Options{})
	f.ed.Initialize(homeRecord())

	if err := f.ed.RemoveImage("logo"); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}
	if _, ok := f.ed.Draft().Get(model.MustParsePath("logoAlt")); ok {
		t.Error("Expected no alt sibling to be created")
	}
}

func servicesRecord() *model.Record {
	return &model.Record{
		ID:   "a",
		Kind: "home-page",
		Fields: model.Fields{
			"services": []any{
				map[string]any{"id": "a", "image": "https://cdn/a.png"},
				map[string]any{"id": "b", "image": "https://cdn/b.png"},
			},
		},
	}
}

func TestSetFieldOverStagedChildren(t *testing.T) {
	t.Run("staged image follows its handle when the list is rewritten", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(servicesRecord())
		_ = f.ed.StageImage("services[1].image", pngFile("b2.png"))
		handle := handleAt(f.ed, "services[1].image")

		err := f.ed.SetField("services", []any{
			map[string]any{"id": "b", "image": string(handle)},
		})
		if err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if got := f.ed.Staged(); !reflect.DeepEqual(got, []string{"services[0].image"}) {
			t.Fatalf("Expected the staged file to move to services[0].image, got %v", got)
		}
		if f.previews.released(handle) != 0 {
			t.Error("Expected the moved preview to stay alive")
		}

		if err := f.ed.Commit(context.Background()); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		services, _ := f.repo.saved.Get(model.MustParsePath("services"))
		list, _ := services.([]any)
		if len(list) != 1 {
			t.Fatalf("Expected one saved service, got %v", services)
		}
		if got, _ := f.repo.saved.Get(model.MustParsePath("services[0].image")); got != "https://cdn/b2.png" {
			t.Errorf("Expected the uploaded URL, got %v", got)
		}
		model.WalkStrings(map[string]any(f.repo.saved), nil, func(at model.Path, v string) {
			if preview.IsHandle(v) {
				t.Errorf("Preview handle saved at %s", at)
			}
		})
		if err := f.previews.doubleReleases(); err != nil {
			t.Error(err)
		}
	})

	t.Run("staged image is dropped when its handle is gone", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(servicesRecord())
		_ = f.ed.StageImage("services[1].image", pngFile("b2.png"))
		handle := handleAt(f.ed, "services[1].image")

		if err := f.ed.SetField("services", []any{map[string]any{"id": "a", "image": "https://cdn/a.png"}}); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if len(f.ed.Staged()) != 0 {
			t.Errorf("Expected nothing staged, got %v", f.ed.Staged())
		}
		if f.previews.released(handle) != 1 {
			t.Errorf("Expected the preview released once, got %d", f.previews.released(handle))
		}

		if err := f.ed.Commit(context.Background()); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if uploads, _, _ := f.repo.count(); uploads != 0 {
			t.Errorf("Expected no uploads, got %d", uploads)
		}
		services, _ := f.repo.saved.Get(model.MustParsePath("services"))
		if list, _ := services.([]any); len(list) != 1 {
			t.Errorf("Expected one saved service, got %v", services)
		}
	})

	t.Run("handle that is not staged under the path is rejected", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(servicesRecord())
		_ = f.ed.StageImage("hero.image", pngFile("hero.png"))
		heroHandle := handleAt(f.ed, "hero.image")
		before := f.ed.Draft()
		f.notes.Drain()

		for name, value := range map[string]any{
			"unknown":    []any{map[string]any{"id": "a", "image": "/previews/made-up"}},
			"from hero":  []any{map[string]any{"id": "a", "image": string(heroHandle)}},
			"used twice": []any{map[string]any{"image": string(heroHandle)}, map[string]any{"image": string(heroHandle)}},
		} {
			var vErr *ValidationError
			if err := f.ed.SetField("services", value); !errors.As(err, &vErr) {
				t.Errorf("%s: expected ValidationError, got %v", name, err)
			}
		}
		if !reflect.DeepEqual(before, f.ed.Draft()) {
			t.Error("Rejected SetField changed the draft")
		}
		if got := f.ed.Staged(); !reflect.DeepEqual(got, []string{"hero.image"}) {
			t.Errorf("Expected hero.image still staged, got %v", got)
		}
		if n := len(f.notes.Drain()); n != 3 {
			t.Errorf("Expected one notification per rejected edit, got %d", n)
		}
	})

	t.Run("removal below a rewritten section is forgotten", func(t *testing.T) {
		f := newFixture(Options{})
		f.ed.Initialize(servicesRecord())
		_ = f.ed.RemoveImage("services[0].image")

		if err := f.ed.SetField("services", []any{}); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if states := f.ed.States(); len(states) != 0 {
			t.Errorf("Expected no pending states, got %v", states)
		}
	})
}

func TestAutoSlug(t *testing.T) {
	f := newFixture(Options{AutoSlugs: []AutoSlug{{Source: "name", Target: "slug"}}})
	f.ed.Initialize(&model.Record{Kind: "trade-show", Fields: model.Fields{}})

	slugOf := func() string { return f.ed.Draft().GetString(model.MustParsePath("slug")) }

	_ = f.ed.SetField("name", "Messe Düsseldorf")
	if slugOf() != "messe-dusseldorf" {
		t.Fatalf("Expected generated slug, got %q", slugOf())
	}

	_ = f.ed.SetField("slug", "custom")
	_ = f.ed.SetField("name", "EuroShop")
	if slugOf() != "custom" {
		t.Errorf("Expected hand-edited slug to stick, got %q", slugOf())
	}

	_ = f.ed.SetField("slug", "")
	_ = f.ed.SetField("name", "EuroShop 2026")
	if slugOf() != "euroshop-2026" {
		t.Errorf("Expected clearing the slug to re-attach, got %q", slugOf())
	}

	t.Run("existing record with a custom slug stays detached", func(t *testing.T) {
		g := newFixture(Options{AutoSlugs: []AutoSlug{{Source: "name", Target: "slug"}}})
		g.ed.Initialize(&model.Record{ID: "t1", Fields: model.Fields{"name": "EuroShop", "slug": "es"}})
		_ = g.ed.SetField("name", "EuroShop 2027")
		if got := g.ed.Draft().GetString(model.MustParsePath("slug")); got != "es" {
			t.Errorf("Expected slug es, got %q", got)
		}
	})
}

func TestRedirectRuleRunsBeforeUploads(t *testing.T) {
	checker := &countingChecker{}
	f := newFixture(Options{Rules: []Rule{
		RedirectRule{Path: "redirectUrl", Validator: redirect.Validator{Kind: "blog-post", Checker: checker}},
	}})
	f.ed.Initialize(homeRecord())
	_ = f.ed.StageImage("hero.image", pngFile("a.png"))
	_ = f.ed.SetField("redirectUrl", "not a url")

	err := f.ed.Commit(context.Background())

	var formatErr *redirect.FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError, got %v", err)
	}
	var notFound *redirect.NotFoundError
	if errors.As(err, &notFound) {
		t.Error("Expected a format error, not an existence error")
	}
	if checker.calls != 0 {
		t.Errorf("Expected no existence check, got %d", checker.calls)
	}
	if uploads, creates, updates := f.repo.count(); uploads+creates+updates != 0 {
		t.Error("Expected no repository writes")
	}
	if len(f.ed.Staged()) != 1 {
		t.Error("Expected the file to stay staged")
	}
	if n := len(f.notes.Drain()); n != 1 {
		t.Errorf("Expected one notification, got %d", n)
	}

	t.Run("existing target lets the commit through", func(t *testing.T) {
		checker.ok = true
		_ = f.ed.SetField("redirectUrl", "/blog/stand-design")
		if err := f.ed.Commit(context.Background()); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if checker.calls != 1 {
			t.Errorf("Expected one existence check, got %d", checker.calls)
		}
	})

	t.Run("lookup failure is not a validation error", func(t *testing.T) {
		checker.err = errors.New("database is locked")
		_ = f.ed.SetField("redirectUrl", "/blog/other")

		err := f.ed.Commit(context.Background())
		if !errors.Is(err, checker.err) {
			t.Fatalf("Expected the lookup error, got %v", err)
		}
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			t.Errorf("Expected no ValidationError, got %v", err)
		}
		if f.ed.Committing() {
			t.Error("Expected the commit to be finished")
		}
	})
}

type countingChecker struct {
	calls int
	ok    bool
	err   error
}

func (c *countingChecker) Exists(context.Context, model.Kind, string) (bool, error) {
	c.calls++
	return c.ok, c.err
}

func TestTeardown(t *testing.T) {
	f := newFixture(Options{})
	f.ed.Initialize(homeRecord())
	_ = f.ed.StageImage("hero.image", pngFile("a.png"))
	_ = f.ed.StageImage("logo", pngFile("b.png"))

	f.ed.Teardown()
	f.ed.Teardown()

	if f.previews.Len() != 0 {
		t.Errorf("Expected all previews released, %d left", f.previews.Len())
	}
	if err := f.previews.doubleReleases(); err != nil {
		t.Error(err)
	}

	for name, err := range map[string]error{
		"SetField":    f.ed.SetField("hero.title", "x"),
		"StageImage":  f.ed.StageImage("logo", pngFile("c.png")),
		"RemoveImage": f.ed.RemoveImage("logo"),
		"Commit":      f.ed.Commit(context.Background()),
	} {
		if !errors.Is(err, ErrTornDown) {
			t.Errorf("%s: expected ErrTornDown, got %v", name, err)
		}
	}
	if f.ed.Initialize(&model.Record{ID: "z"}) {
		t.Error("Expected Initialize to be ignored after teardown")
	}
}
