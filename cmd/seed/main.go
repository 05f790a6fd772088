// seed imports content records from a directory of YAML files. Each file
// holds one record:
//
//	kind: trade-show
//	fields:
//	  name: EuroShop 2026
//	  city: Düsseldorf
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/db"
	"github.com/debemdeboas/stand-admin/internal/logger"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/debemdeboas/stand-admin/internal/slug"
	"github.com/debemdeboas/stand-admin/internal/util/compression"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Kind   model.Kind   `yaml:"kind"`
	Fields model.Fields `yaml:"fields"`
}

// Creator is the part of the repository seeding writes through.
type Creator interface {
	Create(ctx context.Context, kind model.Kind, fields model.Fields) (*model.Record, error)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	dir := flag.String("path", "", "directory containing .yaml record files")
	flag.Parse()

	log := logger.New("info")
	if *dir == "" {
		log.Fatal().Msg("--path is required")
	}
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Msgf(config.ErrLoadConfigFmt, err)
	}
	cfg := config.AppConfig

	database := db.NewSQLite(cfg.Database.Path)
	if err := database.InitDB(); err != nil {
		log.Fatal().Msgf(config.ErrInitializeDatabaseFmt, err)
	}
	defer database.Close()

	compressor, err := compression.ByName(cfg.Database.Compression)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid compression")
	}
	// Seeds carry no files, so the media store is never written to.
	repo := repository.NewDBContentRepository(database, compressor, media.NewMemoryStore())

	created, err := seedDir(context.Background(), repo, *dir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Int("records", created).Msg("Seeding finished")
}

// seedDir creates one record per YAML file in dir. Files that fail are
// logged and skipped.
func seedDir(ctx context.Context, repo Creator, dir string, log zerolog.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("error reading directory %s: %w", dir, err)
	}

	created := 0
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		rec, err := seedFileAt(ctx, repo, filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Error().Err(err).Str("file", entry.Name()).Msg("Error processing file")
			continue
		}
		log.Info().Str("file", entry.Name()).Str("kind", string(rec.Kind)).Str("id", string(rec.ID)).Msg("Record created")
		created++
	}
	return created, nil
}

func seedFileAt(ctx context.Context, repo Creator, path string) (*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if f.Kind == "" {
		return nil, errors.New("missing kind")
	}
	if f.Fields == nil {
		f.Fields = model.Fields{}
	}

	if _, ok := f.Fields["slug"]; !ok {
		for _, source := range []string{"title", "name"} {
			if s, ok := f.Fields[source].(string); ok && strings.TrimSpace(s) != "" {
				f.Fields["slug"] = slug.Make(s)
				break
			}
		}
	}
	return repo.Create(ctx, f.Kind, f.Fields)
}
