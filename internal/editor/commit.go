package editor

import (
	"context"
	"sort"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/editor/preview"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"golang.org/x/sync/errgroup"
)

type upload struct {
	key   string
	entry *stagedFile
	url   string
}

// Commit validates the draft, uploads every staged file, merges the URLs
// and saves the record. An upload failure aborts before anything is saved
// and keeps every file staged; uploads that did succeed are reused by the
// next attempt. Exactly one notification is sent per call.
func (e *Editor) Commit(ctx context.Context) error {
	e.mu.Lock()
	if err := e.checkMutable(); err != nil {
		e.mu.Unlock()
		return e.fail("Save not started", err)
	}
	if err := e.checkHandlesLocked(); err != nil {
		e.mu.Unlock()
		return e.fail("Cannot save", err)
	}
	e.committing = true

	draft := e.draft
	id := e.seenID
	persisted := e.persisted
	// Paths whose stored value is about to change besides staged ones.
	changed := make([]string, 0, len(e.removed)+len(e.unpersisted))
	for key := range e.removed {
		changed = append(changed, key)
	}
	for key := range e.unpersisted {
		changed = append(changed, key)
	}
	uploads := make([]*upload, 0, len(e.staged))
	for key, s := range e.staged {
		uploads = append(uploads, &upload{key: key, entry: s, url: s.uploadedURL})
	}
	e.mu.Unlock()

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].key < uploads[j].key })

	finish := func() {
		e.mu.Lock()
		e.committing = false
		e.mu.Unlock()
	}

	for _, rule := range e.opts.Rules {
		if err := rule.Check(ctx, draft); err != nil {
			finish()
			return e.fail("Cannot save", err)
		}
	}

	if err := e.upload(ctx, uploads); err != nil {
		finish()
		editorLogger.Warn().Err(err).Str("kind", string(e.kind)).Str("id", string(id)).Msg("Commit aborted by upload failure")
		return e.fail("Upload failed, nothing was saved", err)
	}

	merged := draft
	for _, u := range uploads {
		next, err := merged.With(u.entry.path, u.url)
		if err != nil {
			finish()
			return e.fail("Cannot save", &ValidationError{Path: u.key, Err: err})
		}
		merged = next
	}

	var rec *model.Record
	var err error
	if id == "" {
		rec, err = e.repo.Create(ctx, e.kind, merged.Fields())
	} else {
		rec, err = e.repo.Update(ctx, e.kind, id, merged.Fields())
	}
	if err != nil {
		e.keepMerged(merged, uploads)
		editorLogger.Warn().Err(err).Str("kind", string(e.kind)).Str("id", string(id)).Msg("Commit failed to persist")
		return e.fail("Saving failed", &PersistError{Err: err})
	}

	replaced := e.replacedImages(persisted, rec.Fields, uploads, changed)
	e.adopt(rec)

	revalidatePath := ""
	if e.opts.RevalidatePath != nil {
		revalidatePath = e.opts.RevalidatePath(rec)
	}
	if err := e.repo.TriggerRevalidation(ctx, revalidatePath); err != nil {
		editorLogger.Error().Err(err).Str("path", revalidatePath).Msg(config.ErrRevalidation)
	}
	if e.opts.DeleteReplacedImages {
		e.deleteImages(ctx, replaced)
	}

	editorLogger.Info().Str("kind", string(e.kind)).Str("id", string(rec.ID)).Int("uploads", len(uploads)).Msg("Record saved")
	e.notifier.Notify(notify.Success("Saved"))
	return nil
}

// upload sends every file that has no URL yet, at most UploadConcurrency at
// a time. URLs of uploads that succeeded are stored on their staged entries
// even when another upload fails.
func (e *Editor) upload(ctx context.Context, uploads []*upload) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.UploadConcurrency)

	for _, u := range uploads {
		if u.url != "" {
			continue
		}
		g.Go(func() error {
			res, err := e.repo.UploadImage(gctx, u.entry.file, e.opts.UploadContext)
			if err != nil {
				return &UploadError{Path: u.key, Err: err}
			}
			u.url = res.URL
			return nil
		})
	}
	err := g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tornDown {
		for _, u := range uploads {
			if u.url != "" && e.staged[u.key] == u.entry {
				u.entry.uploadedURL = u.url
			}
		}
	}
	return err
}

// checkHandlesLocked rejects a preview handle in the draft that is not at
// the path of the staged file owning it.
func (e *Editor) checkHandlesLocked() error {
	var err error
	model.WalkStrings(map[string]any(e.draft.fields), nil, func(at model.Path, v string) {
		if err != nil || !preview.IsHandle(v) {
			return
		}
		key := at.String()
		if s, ok := e.staged[key]; !ok || string(s.handle) != v {
			err = &ValidationError{Path: key, Err: errHandleAstray}
		}
	})
	return err
}

// keepMerged runs after a failed save: the uploaded URLs replace their
// previews in the draft so a retry only has to save.
func (e *Editor) keepMerged(merged Draft, uploads []*upload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committing = false
	if e.tornDown {
		return
	}
	for _, u := range uploads {
		if e.staged[u.key] != u.entry {
			continue
		}
		e.release(u.entry.handle)
		delete(e.staged, u.key)
		e.unpersisted[u.key] = u.url
	}
	e.draft = merged
}

// adopt makes the saved record the new baseline.
func (e *Editor) adopt(rec *model.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committing = false
	if e.tornDown {
		return
	}
	for key, s := range e.staged {
		e.release(s.handle)
		delete(e.staged, key)
	}
	e.unpersisted = make(map[string]string)
	e.removed = make(map[string]bool)
	e.seenID = rec.ID
	e.persisted = rec.Fields.Clone()
	e.draft = NewDraft(rec.Fields)
}

// replacedImages lists the previously stored URLs at staged or removed
// or otherwise changed paths that the saved record no longer holds.
func (e *Editor) replacedImages(before, after model.Fields, uploads []*upload, changed []string) []string {
	keys := make(map[string]struct{}, len(uploads)+len(changed))
	for _, u := range uploads {
		keys[u.key] = struct{}{}
	}
	for _, key := range changed {
		keys[key] = struct{}{}
	}

	var out []string
	for key := range keys {
		p, err := model.ParsePath(key)
		if err != nil {
			continue
		}
		old, _ := before.Get(p)
		oldURL, _ := old.(string)
		if oldURL == "" || preview.IsHandle(oldURL) {
			continue
		}
		cur, _ := after.Get(p)
		if s, _ := cur.(string); s != oldURL {
			out = append(out, oldURL)
		}
	}
	sort.Strings(out)
	return out
}
