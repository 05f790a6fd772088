package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/debemdeboas/stand-admin/internal/admin"
	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/db"
	"github.com/debemdeboas/stand-admin/internal/editor"
	"github.com/debemdeboas/stand-admin/internal/editor/preview"
	"github.com/debemdeboas/stand-admin/internal/logger"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/debemdeboas/stand-admin/internal/revalidate"
	"github.com/debemdeboas/stand-admin/internal/routes"
	"github.com/debemdeboas/stand-admin/internal/sse"
	"github.com/debemdeboas/stand-admin/internal/util/compression"
)

var mainLogger zerolog.Logger

const sessionSweepInterval = time.Minute

func setLoggers(l zerolog.Logger) {
	mainLogger = logger.Component(l, "main")
	config.SetLogger(logger.Component(l, "config"))
	db.SetLogger(logger.Component(l, "db"))
	repository.SetLogger(logger.Component(l, "repository"))
	media.SetLogger(logger.Component(l, "media"))
	editor.SetLogger(logger.Component(l, "editor"))
	revalidate.SetLogger(logger.Component(l, "revalidate"))
	admin.SetLogger(logger.Component(l, "admin"))
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	inMemory := flag.Bool("memory", false, "keep records in memory instead of the database")
	flag.Parse()

	envErr := godotenv.Load()

	setLoggers(logger.New("info"))
	if err := config.LoadConfig(*configPath); err != nil {
		mainLogger.Fatal().Msgf(config.ErrLoadConfigFmt, err)
	}
	cfg := config.AppConfig
	setLoggers(logger.New(cfg.Logging.Level))
	if envErr != nil {
		mainLogger.Debug().Err(envErr).Msg("No .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, *inMemory)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to start")
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		mainLogger.Fatal().Err(err).Msg("Server stopped")
	}
}

type server struct {
	cfg *config.Config

	database db.DB
	clients  *sse.SSEClients
	kinds    admin.Registry
	repo     repository.ContentRepository
	sessions *admin.SessionStore
	previews *preview.MemoryStore
	// Serves stored files when they live on local disk.
	media http.Handler
}

func newMediaStore(ctx context.Context, cfg config.MediaConfig) (media.Store, http.Handler, error) {
	switch cfg.Backend {
	case "s3":
		store, err := media.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf(config.ErrCreateMediaStoreFmt, err)
		}
		return store, nil, nil
	default:
		store, err := media.NewFSStore(cfg.FS.Dir, cfg.FS.BaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf(config.ErrCreateMediaStoreFmt, err)
		}
		return store, store, nil
	}
}

// newServer wires the repository, media store and editing sessions. With
// inMemory set, records live in process memory and nothing is polled.
func newServer(ctx context.Context, cfg *config.Config, inMemory bool) (*server, error) {
	s := &server{
		cfg:      cfg,
		clients:  sse.NewSSEClients(),
		kinds:    admin.DefaultKinds(),
		sessions: admin.NewSessionStore(cfg.Sessions.IdleTimeoutDuration()),
		previews: preview.NewMemoryStore(),
	}

	store, mediaHandler, err := newMediaStore(ctx, cfg.Media)
	if err != nil {
		return nil, err
	}
	s.media = mediaHandler
	revalidator := revalidate.New(s.clients, cfg.Revalidation)

	if inMemory {
		repo := repository.NewMemoryContentRepository(store)
		repo.SetRevalidator(revalidator)
		s.repo = repo
		return s, nil
	}

	compressor, err := compression.ByName(cfg.Database.Compression)
	if err != nil {
		return nil, err
	}
	s.database = db.NewSQLite(cfg.Database.Path)
	if err := s.database.InitDB(); err != nil {
		return nil, fmt.Errorf(config.ErrInitializeDatabaseFmt, err)
	}

	repo := repository.NewDBContentRepository(s.database, compressor, store)
	repo.SetRevalidator(revalidator)
	repo.SetReloadNotifier(s.handleReloadRecord)
	if err := repo.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrInitializingRecords, err)
	}
	go repo.Watch(ctx, cfg.Repository.ReloadIntervalDuration())
	s.repo = repo
	return s, nil
}

// handleReloadRecord runs when another process changed a record.
func (s *server) handleReloadRecord(rec *model.Record) {
	n := s.sessions.Refresh(rec)
	path := "/"
	if def, ok := s.kinds[rec.Kind]; ok {
		path = def.PublicPath(rec)
	}
	go s.clients.Broadcast(path, "reload")
	mainLogger.Info().Str("kind", string(rec.Kind)).Str("id", string(rec.ID)).Int("sessions", n).Msg("Record reloaded")
}

func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()

	admin.NewHandler(s.repo, s.kinds, s.sessions, s.previews, admin.Options{
		PageSize:             s.cfg.Pagination.PageSize,
		MaxFileSize:          s.cfg.Media.MaxUploadSizeBytes(),
		UploadConcurrency:    s.cfg.Media.UploadConcurrency,
		DeleteReplacedImages: s.cfg.Media.DeleteReplacedImages,
	}).Register(mux)

	mux.Handle(routes.Method(http.MethodGet, routes.Previews), s.previews)
	if s.media != nil {
		mux.Handle(routes.Method(http.MethodGet, routes.Media), s.media)
	}
	mux.HandleFunc(routes.Method(http.MethodGet, routes.SSEPath), s.eventsHandler)
	mux.HandleFunc(routes.Method(http.MethodGet, routes.HealthPath), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	var h http.Handler = secureHeaders(mux.ServeHTTP)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.NewHandler(mainLogger)(h)
	return h
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sessions.Janitor(ctx, sessionSweepInterval)

	errCh := make(chan error, 1)
	go func() {
		mainLogger.Info().Str("addr", addr).Msg("Listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	mainLogger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Close() {
	if s.database == nil {
		return
	}
	if err := s.database.Close(); err != nil {
		mainLogger.Error().Err(err).Msg("Error closing database")
	}
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h(w, r)
	}
}

// eventsHandler streams revalidation and reload events. The optional path
// query parameter limits events to one public page.
func (s *server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(config.HCType, config.CTypeEventStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Del("X-Content-Type-Options")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: SSE connection established\n\n")
	flusher.Flush()

	client := sse.NewClient(r.URL.Query().Get("path"))
	s.clients.Add(client)
	log := hlog.FromRequest(r)
	log.Debug().Str("path", client.Path).Msg("New SSE client connected")

	defer func() {
		s.clients.Delete(client)
		log.Debug().Msg("SSE client disconnected")
	}()

	done := r.Context().Done()
	for {
		select {
		case msg, ok := <-client.Msg:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-done:
			return
		}
	}
}
