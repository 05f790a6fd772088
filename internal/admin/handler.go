package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/editor"
	"github.com/debemdeboas/stand-admin/internal/editor/preview"
	"github.com/debemdeboas/stand-admin/internal/listing"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/notify"
	"github.com/debemdeboas/stand-admin/internal/redirect"
	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/debemdeboas/stand-admin/internal/routes"
	"github.com/docker/go-units"
	"github.com/rs/zerolog/hlog"
)

var errUnknownKind = errors.New("unknown content kind")

// Multipart framing around the file itself.
const multipartOverhead = 1 * units.MB

type Options struct {
	PageSize             int
	MaxFileSize          int64
	UploadConcurrency    int
	DeleteReplacedImages bool
}

type Handler struct {
	repo     repository.ContentRepository
	kinds    Registry
	sessions *SessionStore
	previews preview.Store
	opts     Options
}

func NewHandler(repo repository.ContentRepository, kinds Registry, sessions *SessionStore, previews preview.Store, opts Options) *Handler {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = editor.DefaultMaxFileSize
	}
	return &Handler{
		repo:     repo,
		kinds:    kinds,
		sessions: sessions,
		previews: previews,
		opts:     opts,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(routes.Method(http.MethodGet, routes.APIContent), h.ServeList)
	mux.HandleFunc(routes.Method(http.MethodDelete, routes.APIContentItem), h.ServeDelete)
	mux.HandleFunc(routes.Method(http.MethodPost, routes.APIContentSessions), h.ServeOpenSession)

	mux.HandleFunc(routes.Method(http.MethodGet, routes.APISession), h.ServeSession)
	mux.HandleFunc(routes.Method(http.MethodDelete, routes.APISession), h.ServeTeardown)
	mux.HandleFunc(routes.Method(http.MethodPatch, routes.APISessionFields), h.ServeSetField)
	mux.HandleFunc(routes.Method(http.MethodPost, routes.APISessionImages), h.ServeStageImage)
	mux.HandleFunc(routes.Method(http.MethodDelete, routes.APISessionImages), h.ServeRemoveImage)
	mux.HandleFunc(routes.Method(http.MethodPost, routes.APISessionCommit), h.ServeCommit)
}

func (h *Handler) kind(r *http.Request) (KindDef, error) {
	def, ok := h.kinds[model.Kind(r.PathValue("kind"))]
	if !ok {
		return KindDef{}, errUnknownKind
	}
	return def, nil
}

type listResponse struct {
	Items         []model.Record        `json:"items"`
	Page          int                   `json:"page"`
	Total         int                   `json:"total"`
	TotalPages    int                   `json:"totalPages"`
	Search        string                `json:"search,omitempty"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
}

func newListResponse(o *listing.Overlay[model.Record]) listResponse {
	items := o.Items()
	if items == nil {
		items = []model.Record{}
	}
	return listResponse{
		Items:      items,
		Page:       o.Page(),
		Total:      o.Total(),
		TotalPages: o.TotalPages(),
		Search:     o.Term(),
	}
}

// openList positions a list overlay where the request says the client is.
func (h *Handler) openList(r *http.Request, def KindDef) (*listing.Overlay[model.Record], error) {
	ctx := r.Context()
	o := newOverlay(h.repo, def, h.opts.PageSize)

	q := r.URL.Query()
	if term := q.Get("search"); term != "" {
		if err := o.Search(ctx, term); err != nil {
			return nil, err
		}
	} else if err := o.Load(ctx); err != nil {
		return nil, err
	}

	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		if err := o.GoTo(ctx, page); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	def, err := h.kind(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	o, err := h.openList(r, def)
	if err != nil {
		writeError(w, r, err, []notify.Notification{notify.Error("Loading failed", err)})
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(o))
}

// ServeDelete deletes a record and returns the list page the client is on,
// or the new last page if that one is gone.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	def, err := h.kind(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	o, err := h.openList(r, def)
	if err != nil {
		writeError(w, r, err, []notify.Notification{notify.Error("Loading failed", err)})
		return
	}

	id := r.PathValue("id")
	if err := o.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, []notify.Notification{notify.Error("Delete failed", err)})
		return
	}
	hlog.FromRequest(r).Info().Str("kind", string(def.Kind)).Str("id", id).Msg("Record deleted")

	resp := newListResponse(o)
	resp.Notifications = []notify.Notification{notify.Success("Deleted")}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) newEditor(def KindDef, notes *notify.Recorder) *editor.Editor {
	opts := editor.Options{
		MaxFileSize:          h.opts.MaxFileSize,
		UploadConcurrency:    h.opts.UploadConcurrency,
		DeleteReplacedImages: h.opts.DeleteReplacedImages,
		RevalidatePath:       def.PublicPath,
		AutoSlugs:            def.AutoSlugs,
	}
	for _, rf := range def.Redirects {
		opts.Rules = append(opts.Rules, editor.RedirectRule{
			Path:      rf.Path,
			Validator: redirect.Validator{Kind: rf.Target, Checker: h.repo},
		})
	}
	notifier := notify.Multi{notes, notify.LogNotifier{Logger: adminLogger}}
	return editor.New(def.Kind, h.repo, h.previews, notifier, opts)
}

// ServeOpenSession starts editing a record. The id "new" starts an empty
// draft that is created on the first commit.
func (h *Handler) ServeOpenSession(w http.ResponseWriter, r *http.Request) {
	def, err := h.kind(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	rec := &model.Record{Kind: def.Kind}
	if id := r.PathValue("id"); id != routes.NewRecordID {
		rec, err = h.repo.Fetch(r.Context(), def.Kind, model.RecordID(id))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
	}

	notes := &notify.Recorder{}
	ed := h.newEditor(def, notes)
	ed.Initialize(rec)
	sess := h.sessions.Create(def.Kind, ed, notes)

	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieSessionID,
		Value:    string(sess.ID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	hlog.FromRequest(r).Info().Str("session", string(sess.ID)).Str("kind", string(def.Kind)).Str("id", string(rec.ID)).Msg("Editing session opened")
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

type sessionResponse struct {
	ID            SessionID               `json:"id"`
	Kind          model.Kind              `json:"kind"`
	RecordID      model.RecordID          `json:"recordId,omitempty"`
	Draft         editor.Draft            `json:"draft"`
	States        map[string]editor.State `json:"states"`
	Staged        []string                `json:"staged"`
	Committing    bool                    `json:"committing"`
	Notifications []notify.Notification   `json:"notifications"`
}

func newSessionResponse(sess *Session) sessionResponse {
	ed := sess.Editor
	return sessionResponse{
		ID:            sess.ID,
		Kind:          sess.Kind,
		RecordID:      ed.RecordID(),
		Draft:         ed.Draft(),
		States:        ed.States(),
		Staged:        ed.Staged(),
		Committing:    ed.Committing(),
		Notifications: sess.Notes.Drain(),
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.sessions.Get(SessionID(r.PathValue("sid")))
	if err != nil {
		writeError(w, r, err, nil)
		return nil, false
	}
	return sess, true
}

// respond writes the session after an action that returned err.
func respond(w http.ResponseWriter, r *http.Request, sess *Session, err error) {
	if err != nil {
		writeError(w, r, err, sess.Notes.Drain())
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

type setFieldRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (h *Handler) ServeSetField(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &editor.ValidationError{Err: err}, nil)
		return
	}
	respond(w, r, sess, sess.Editor.SetField(req.Path, req.Value))
}

func (h *Handler) ServeStageImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	path := r.URL.Query().Get("path")
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = &editor.ValidationError{Path: path, Err: err}
			writeError(w, r, err, []notify.Notification{notify.Error("File too large", err)})
			return
		}
		writeError(w, r, &editor.ValidationError{Path: path, Err: err}, nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, &editor.ValidationError{Path: path, Err: err}, nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	respond(w, r, sess, sess.Editor.StageImage(path, editor.File{
		Name:        header.Filename,
		ContentType: header.Header.Get(config.HCType),
		Data:        data,
	}))
}

func (h *Handler) ServeRemoveImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respond(w, r, sess, sess.Editor.RemoveImage(r.URL.Query().Get("path")))
}

// ServeCommit saves the session's draft. The commit outlives a client that
// disconnects mid-request.
func (h *Handler) ServeCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	err := sess.Editor.Commit(context.WithoutCancel(r.Context()))
	respond(w, r, sess, err)
}

func (h *Handler) ServeTeardown(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(SessionID(r.PathValue("sid"))); err != nil {
		writeError(w, r, err, nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:   config.CookieSessionID,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
