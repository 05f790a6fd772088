// Package editor implements staged editing of a content record: local
// drafts, image files held back until commit, and an all-or-nothing save.
package editor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/editor/preview"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/debemdeboas/stand-admin/internal/slug"
	"github.com/rs/zerolog"
)

var editorLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

// Repository is the part of repository.ContentRepository the editor writes through.
type Repository interface {
	Create(ctx context.Context, kind model.Kind, fields model.Fields) (*model.Record, error)
	Update(ctx context.Context, kind model.Kind, id model.RecordID, fields model.Fields) (*model.Record, error)
	UploadImage(ctx context.Context, file model.File, uploadContext string) (repository.UploadResult, error)
	DeleteImage(ctx context.Context, url string) error
	TriggerRevalidation(ctx context.Context, path string) error
}

type Options struct {
	MaxFileSize          int64
	UploadConcurrency    int
	DeleteReplacedImages bool

	// UploadContext groups uploaded objects; defaults to the kind.
	UploadContext string
	// RevalidatePath names the public page to refresh after a save.
	RevalidatePath func(*model.Record) string

	Rules     []Rule
	AutoSlugs []AutoSlug
}

const cleanupTimeout = 30 * time.Second

type stagedFile struct {
	path   model.Path
	file   File
	handle preview.Handle

	// Set once an upload succeeded in a commit that failed later on.
	uploadedURL string
}

type autoSlug struct {
	source   model.Path
	target   model.Path
	attached bool
}

// Editor owns the draft of one record for one editing session. It is safe
// for concurrent use; no lock is held across repository calls.
type Editor struct {
	kind     model.Kind
	repo     Repository
	previews preview.Store
	notifier notify.Notifier
	opts     Options

	mu sync.Mutex

	seeded    bool
	seenID    model.RecordID
	persisted model.Fields
	draft     Draft

	staged  map[string]*stagedFile
	removed map[string]bool
	// Uploaded by a commit whose save failed; not referenced by any record yet.
	unpersisted map[string]string

	slugs []*autoSlug

	committing bool
	tornDown   bool

	bg sync.WaitGroup
}

func New(kind model.Kind, repo Repository, previews preview.Store, notifier notify.Notifier, opts Options) *Editor {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.UploadConcurrency < 1 {
		opts.UploadConcurrency = 1
	}
	if opts.UploadContext == "" {
		opts.UploadContext = string(kind)
	}
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: editorLogger}
	}

	e := &Editor{
		kind:        kind,
		repo:        repo,
		previews:    previews,
		notifier:    notifier,
		opts:        opts,
		persisted:   model.Fields{},
		draft:       NewDraft(nil),
		staged:      make(map[string]*stagedFile),
		removed:     make(map[string]bool),
		unpersisted: make(map[string]string),
	}
	for _, a := range opts.AutoSlugs {
		e.slugs = append(e.slugs, &autoSlug{
			source: model.MustParsePath(a.Source),
			target: model.MustParsePath(a.Target),
		})
	}
	return e
}

func (e *Editor) Kind() model.Kind {
	return e.kind
}

// Initialize seeds the draft from rec. It only does so the first time and
// when rec has a different id than the one seen last, never during a commit
// and never after Teardown. It reports whether the draft was reseeded.
func (e *Editor) Initialize(rec *model.Record) bool {
	if rec == nil {
		rec = &model.Record{Kind: e.kind}
	}

	e.mu.Lock()
	if e.tornDown || e.committing {
		e.mu.Unlock()
		editorLogger.Debug().Str("id", string(rec.ID)).Msg("Ignoring initialize while committing or torn down")
		return false
	}
	if e.seeded && rec.ID == e.seenID {
		e.mu.Unlock()
		return false
	}

	orphans := e.resetStagedLocked()

	e.seeded = true
	e.seenID = rec.ID
	e.persisted = rec.Fields.Clone()
	e.draft = NewDraft(rec.Fields)
	e.removed = make(map[string]bool)
	for _, s := range e.slugs {
		target := e.draft.GetString(s.target)
		s.attached = target == "" || target == slug.Make(e.draft.GetString(s.source))
	}
	e.mu.Unlock()

	e.deleteLater(orphans...)
	editorLogger.Debug().Str("kind", string(e.kind)).Str("id", string(rec.ID)).Msg("Draft initialized")
	return true
}

// resetStagedLocked releases every preview and forgets staged and
// unpersisted uploads, returning URLs nothing will reference.
func (e *Editor) resetStagedLocked() []string {
	var orphans []string
	for key, s := range e.staged {
		e.release(s.handle)
		if s.uploadedURL != "" {
			orphans = append(orphans, s.uploadedURL)
		}
		delete(e.staged, key)
	}
	for key, u := range e.unpersisted {
		orphans = append(orphans, u)
		delete(e.unpersisted, key)
	}
	return orphans
}

func (e *Editor) release(h preview.Handle) {
	if err := e.previews.Release(h); err != nil {
		editorLogger.Error().Err(err).Str("handle", string(h)).Msg(config.ErrReleasePreview)
	}
}

// deleteLater removes uploads nothing references any more, best effort.
func (e *Editor) deleteLater(urls ...string) {
	if len(urls) == 0 {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		e.deleteImages(ctx, urls)
	}()
}

func (e *Editor) deleteImages(ctx context.Context, urls []string) {
	for _, u := range urls {
		if err := e.repo.DeleteImage(ctx, u); err != nil {
			editorLogger.Warn().Err(err).Str("url", u).Msg(config.ErrDeleteReplacedFile)
		}
	}
}

// checkMutable must be called with e.mu held.
func (e *Editor) checkMutable() error {
	if e.tornDown {
		return ErrTornDown
	}
	if e.committing {
		return ErrCommitInProgress
	}
	return nil
}

func (e *Editor) fail(msg string, err error) error {
	e.notifier.Notify(notify.Error(msg, err))
	return err
}

func parsePath(path string) (model.Path, error) {
	p, err := model.ParsePath(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	return p, nil
}

// keyUnder reports whether k is key or a path inside it.
func keyUnder(k, key string) bool {
	return k == key || strings.HasPrefix(k, key+".") || strings.HasPrefix(k, key+"[")
}

// replaceLocked reconciles staged files, unpersisted uploads and removals
// at or below p with value, the new content of p. A staged file whose
// handle appears inside value moves to where it appears; the others are
// dropped. A handle in value that no staged file under p owns is rejected
// before anything changes. It returns uploads that became unused.
func (e *Editor) replaceLocked(p model.Path, value any) ([]string, error) {
	key := p.String()

	handles := make(map[string]model.Path)
	urls := make(map[string]model.Path)
	var dup string
	model.WalkStrings(value, p, func(at model.Path, s string) {
		if !preview.IsHandle(s) {
			if _, ok := urls[s]; !ok {
				urls[s] = at
			}
			return
		}
		if _, ok := handles[s]; ok && dup == "" {
			dup = at.String()
		}
		handles[s] = at
	})
	if dup != "" {
		return nil, &ValidationError{Path: dup, Err: errHandleReused}
	}

	kept := make(map[*stagedFile]model.Path)
	for k, s := range e.staged {
		if !keyUnder(k, key) {
			continue
		}
		if at, ok := handles[string(s.handle)]; ok {
			kept[s] = at
			delete(handles, string(s.handle))
		}
	}
	if len(handles) > 0 {
		stray := make([]string, 0, len(handles))
		for _, at := range handles {
			stray = append(stray, at.String())
		}
		slices.Sort(stray)
		return nil, &ValidationError{Path: stray[0], Err: errHandleAstray}
	}

	var orphans []string
	for k, s := range e.staged {
		if !keyUnder(k, key) {
			continue
		}
		delete(e.staged, k)
		if _, ok := kept[s]; ok {
			continue
		}
		e.release(s.handle)
		if s.uploadedURL != "" {
			orphans = append(orphans, s.uploadedURL)
		}
	}
	for s, at := range kept {
		s.path = at
		e.staged[at.String()] = s
	}

	moved := make(map[string]string)
	for k, u := range e.unpersisted {
		if !keyUnder(k, key) {
			continue
		}
		delete(e.unpersisted, k)
		if at, ok := urls[u]; ok {
			moved[at.String()] = u
			continue
		}
		orphans = append(orphans, u)
	}
	for k, u := range moved {
		e.unpersisted[k] = u
	}

	for k := range e.removed {
		if keyUnder(k, key) {
			delete(e.removed, k)
		}
	}
	return orphans, nil
}

// SetField sets the value at path. Staged images at or below path are
// discarded unless the new value still carries their preview handle.
func (e *Editor) SetField(path string, value any) error {
	p, err := parsePath(path)
	if err != nil {
		return e.fail("Invalid field", err)
	}
	key := p.String()

	e.mu.Lock()
	if err := e.checkMutable(); err != nil {
		e.mu.Unlock()
		return e.fail("Cannot edit right now", err)
	}

	stored := model.CloneValue(value)
	next, err := e.draft.With(p, stored)
	if err != nil {
		e.mu.Unlock()
		return e.fail("Invalid field", &ValidationError{Path: key, Err: err})
	}

	for _, s := range e.slugs {
		switch key {
		case s.target.String():
			text, _ := value.(string)
			s.attached = text == "" || text == slug.Make(next.GetString(s.source))
		case s.source.String():
			if !s.attached {
				continue
			}
			text, _ := value.(string)
			if withSlug, err := next.With(s.target, slug.Make(text)); err == nil {
				next = withSlug
			}
		}
	}

	orphans, err := e.replaceLocked(p, stored)
	if err != nil {
		e.mu.Unlock()
		return e.fail("Invalid field", err)
	}
	e.draft = next
	e.mu.Unlock()

	e.deleteLater(orphans...)
	return nil
}

// StageImage validates f and shows it at path through a preview handle.
// Nothing is uploaded until Commit.
func (e *Editor) StageImage(path string, f File) error {
	p, err := parsePath(path)
	if err != nil {
		return e.fail("Invalid field", err)
	}
	key := p.String()

	contentType, err := checkFile(f, e.opts.MaxFileSize)
	if err != nil {
		return e.fail("Image rejected", &ValidationError{Path: key, Err: err})
	}

	e.mu.Lock()
	if err := e.checkMutable(); err != nil {
		e.mu.Unlock()
		return e.fail("Cannot edit right now", err)
	}

	// Check the path before allocating a preview for it.
	if _, err := e.draft.With(p, ""); err != nil {
		e.mu.Unlock()
		return e.fail("Invalid field", &ValidationError{Path: key, Err: err})
	}

	handle, err := e.previews.Create(contentType, f.Data)
	if err != nil {
		e.mu.Unlock()
		return e.fail("Could not preview image", err)
	}
	next, _ := e.draft.With(p, string(handle))

	orphans, _ := e.replaceLocked(p, "")
	e.staged[key] = &stagedFile{path: p, file: f, handle: handle}
	e.draft = next
	e.mu.Unlock()

	e.deleteLater(orphans...)
	editorLogger.Debug().Str("path", key).Int64("size", f.Size()).Str("handle", string(handle)).Msg("Image staged")
	return nil
}

// RemoveImage clears the image at path and its alt text. The stored value
// becomes empty on the next commit.
func (e *Editor) RemoveImage(path string) error {
	p, err := parsePath(path)
	if err != nil {
		return e.fail("Invalid field", err)
	}
	key := p.String()

	e.mu.Lock()
	if err := e.checkMutable(); err != nil {
		e.mu.Unlock()
		return e.fail("Cannot edit right now", err)
	}

	next, err := e.draft.With(p, "")
	if err != nil {
		e.mu.Unlock()
		return e.fail("Invalid field", &ValidationError{Path: key, Err: err})
	}
	if alt, ok := p.AltPath(); ok {
		if _, exists := next.Get(alt); exists {
			next, _ = next.With(alt, "")
		}
	}

	orphans, _ := e.replaceLocked(p, "")
	e.removed[key] = true
	e.draft = next
	e.mu.Unlock()

	e.deleteLater(orphans...)
	return nil
}

// Teardown ends the session and releases every preview. A commit still in
// flight finishes its remote writes but no longer touches this editor.
func (e *Editor) Teardown() {
	e.mu.Lock()
	if e.tornDown {
		e.mu.Unlock()
		return
	}
	e.tornDown = true
	committing := e.committing
	orphans := e.resetStagedLocked()
	e.mu.Unlock()

	if !committing {
		e.deleteLater(orphans...)
	}
	editorLogger.Debug().Str("kind", string(e.kind)).Str("id", string(e.seenID)).Msg("Editor torn down")
}

// FieldState reports where the image at path is in its lifecycle.
func (e *Editor) FieldState(path string) State {
	p, err := model.ParsePath(path)
	if err != nil {
		return StatePersisted
	}
	key := p.String()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.staged[key]; ok {
		if e.committing {
			return StateUploading
		}
		return StateStaged
	}
	if e.removed[key] {
		return StateRemoved
	}
	if _, ok := e.unpersisted[key]; ok {
		return StateUnsaved
	}
	return StatePersisted
}

// States returns the state of every path that is not persisted.
func (e *Editor) States() map[string]State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]State, len(e.staged)+len(e.removed)+len(e.unpersisted))
	for key := range e.unpersisted {
		out[key] = StateUnsaved
	}
	for key := range e.removed {
		out[key] = StateRemoved
	}
	for key := range e.staged {
		if e.committing {
			out[key] = StateUploading
		} else {
			out[key] = StateStaged
		}
	}
	return out
}

func (e *Editor) Draft() Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// Staged returns the paths with a staged file, sorted.
func (e *Editor) Staged() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.staged))
	for key := range e.staged {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}

func (e *Editor) Committing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committing
}

// RecordID is empty until a new record has been created.
func (e *Editor) RecordID() model.RecordID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seenID
}

func (e *Editor) TornDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tornDown
}
