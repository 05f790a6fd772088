// sweep-orphans deletes uploaded images that no record references.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/db"
	"github.com/debemdeboas/stand-admin/internal/logger"
	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/debemdeboas/stand-admin/internal/util/compression"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	olderThan := flag.Duration("older-than", 24*time.Hour, "only sweep uploads older than this")
	flag.Parse()

	log := logger.New("info")
	repository.SetLogger(logger.Component(log, "repository"))
	media.SetLogger(logger.Component(log, "media"))

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Msgf(config.ErrLoadConfigFmt, err)
	}
	cfg := config.AppConfig

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var store media.Store
	var err error
	switch cfg.Media.Backend {
	case "s3":
		store, err = media.NewS3Store(ctx, cfg.Media.S3)
	default:
		store, err = media.NewFSStore(cfg.Media.FS.Dir, cfg.Media.FS.BaseURL)
	}
	if err != nil {
		log.Fatal().Msgf(config.ErrCreateMediaStoreFmt, err)
	}

	database := db.NewSQLite(cfg.Database.Path)
	if err := database.InitDB(); err != nil {
		log.Fatal().Msgf(config.ErrInitializeDatabaseFmt, err)
	}
	defer database.Close()

	compressor, err := compression.ByName(cfg.Database.Compression)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid compression")
	}

	repo := repository.NewDBContentRepository(database, compressor, store)
	removed, err := repo.SweepOrphans(ctx, *olderThan)
	if err != nil {
		log.Error().Err(err).Int("removed", removed).Msg("Orphan sweep failed")
		return
	}
	log.Info().Int("removed", removed).Dur("older_than", *olderThan).Msg("Done")
}
