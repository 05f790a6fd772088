package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/debemdeboas/stand-admin/internal/cache"
	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/db"
	"github.com/debemdeboas/stand-admin/internal/model"
	"github.com/debemdeboas/stand-admin/internal/repository/media"
	"github.com/debemdeboas/stand-admin/internal/util"
	"github.com/debemdeboas/stand-admin/internal/util/compression"
	"github.com/google/uuid"
)

// DBContentRepository stores records as compressed JSON in SQL and keeps
// a cache of them that a background poller refreshes.
type DBContentRepository struct { // implements ContentRepository
	db         db.DB
	compressor compression.Compressor
	store      media.Store

	revalidator Revalidator

	records *cache.Cache[model.RecordID, *model.Record]

	reloadNotifier func(*model.Record)

	mu               sync.Mutex
	lastModifiedTime *time.Time
	lastCount        int

	now func() time.Time
}

func NewDBContentRepository(database db.DB, compressor compression.Compressor, store media.Store) *DBContentRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &DBContentRepository{
		db:         database,
		compressor: compressor,
		store:      store,

		records: cache.NewCache[model.RecordID, *model.Record](),

		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *DBContentRepository) SetRevalidator(rv Revalidator) {
	r.revalidator = rv
}

// SetReloadNotifier sets a function called with every record changed outside this process.
func (r *DBContentRepository) SetReloadNotifier(notifier func(*model.Record)) {
	r.reloadNotifier = notifier
}

// Init fills the cache.
func (r *DBContentRepository) Init(ctx context.Context) error {
	recs, err := r.loadAll(ctx)
	if err != nil {
		return err
	}
	r.records.SetTo(recs)

	latest, err := r.GetLatestModifiedTime(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.lastModifiedTime = latest
	r.lastCount = len(recs)
	r.mu.Unlock()

	repoLogger.Info().Int("records", len(recs)).Msg("Records loaded")
	return nil
}

func (r *DBContentRepository) GetLatestModifiedTime(ctx context.Context) (*time.Time, error) {
	var latestTimeStr sql.NullString
	err := r.db.QueryRow(ctx, `SELECT MAX(modified_at) FROM records`).Scan(&latestTimeStr)
	if err != nil {
		return nil, fmt.Errorf("error scanning latest modified time: %w", err)
	}

	if !latestTimeStr.Valid {
		return nil, nil
	}

	// MAX() loses the column type, so go-sqlite3 hands back text.
	timeFormats := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		time.RFC3339,
	}

	var parseErr error
	for _, format := range timeFormats {
		latestTime, err := time.Parse(format, latestTimeStr.String)
		if err == nil {
			return &latestTime, nil
		}
		parseErr = err
	}

	return nil, fmt.Errorf("error parsing latest modified time '%s' with any known format: %w", latestTimeStr.String, parseErr)
}

const recordColumns = `id, kind, content, content_hash, created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DBContentRepository) scanRecord(row rowScanner) (*model.Record, error) {
	var rec model.Record
	var compressed []byte

	if err := row.Scan(&rec.ID, &rec.Kind, &compressed, &rec.ContentHash, &rec.CreatedDate, &rec.ModifiedDate); err != nil {
		return nil, err
	}

	payload, err := r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing record %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(payload, &rec.Fields); err != nil {
		return nil, fmt.Errorf("error decoding record %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = model.Fields{}
	}
	return &rec, nil
}

func (r *DBContentRepository) queryRecords(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying records: %w", err)
	}
	defer rows.Close()

	recs := make([]model.Record, 0)
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning record: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (r *DBContentRepository) loadAll(ctx context.Context) (map[model.RecordID]*model.Record, error) {
	recs, err := r.queryRecords(ctx, `SELECT `+recordColumns+` FROM records`)
	if err != nil {
		return nil, err
	}
	out := make(map[model.RecordID]*model.Record, len(recs))
	for i := range recs {
		out[recs[i].ID] = &recs[i]
	}
	return out, nil
}

func (r *DBContentRepository) Fetch(ctx context.Context, kind model.Kind, id model.RecordID) (*model.Record, error) {
	if rec, ok := r.records.Get(id); ok && rec.Kind == kind {
		return rec.Clone(), nil
	}

	rec, err := r.scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ? AND kind = ?`, id, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.records.Set(rec.ID, rec.Clone())
	return rec, nil
}

func (r *DBContentRepository) List(ctx context.Context, kind model.Kind, page, size int) ([]model.Record, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting records: %w", err)
	}

	recs, err := r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		kind, size, (page-1)*size,
	)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (r *DBContentRepository) ListAll(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	return r.queryRecords(ctx, `SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY created_at DESC, id`, kind)
}

func (r *DBContentRepository) encode(fields model.Fields) ([]byte, string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, "", fmt.Errorf("error encoding fields: %w", err)
	}
	compressed, err := r.compressor.Compress(payload)
	if err != nil {
		return nil, "", fmt.Errorf("error compressing content: %w", err)
	}
	return compressed, util.ContentHash(payload), nil
}

func (r *DBContentRepository) Create(ctx context.Context, kind model.Kind, fields model.Fields) (*model.Record, error) {
	now := r.now()
	rec := &model.Record{
		ID:           model.RecordID(uuid.New().String()),
		Kind:         kind,
		Fields:       mergeFields(nil, fields),
		CreatedDate:  now,
		ModifiedDate: now,
	}

	compressed, hash, err := r.encode(rec.Fields)
	if err != nil {
		return nil, err
	}
	rec.ContentHash = hash

	res, err := r.db.Exec(ctx,
		`INSERT INTO records (id, kind, slug, content, content_hash, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Slug(), compressed, rec.ContentHash, rec.CreatedDate, rec.ModifiedDate,
	)
	if err != nil {
		return nil, fmt.Errorf("error saving record: %w", err)
	}

	repoLogger.Debug().Interface("result", res).Str("id", string(rec.ID)).Str("kind", string(kind)).Msg("Record created")

	r.remember(rec)
	return rec.Clone(), nil
}

func (r *DBContentRepository) Update(ctx context.Context, kind model.Kind, id model.RecordID, fields model.Fields) (*model.Record, error) {
	current, err := r.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	rec := current
	rec.Fields = mergeFields(current.Fields, fields)
	rec.ModifiedDate = r.now()

	compressed, hash, err := r.encode(rec.Fields)
	if err != nil {
		return nil, err
	}
	rec.ContentHash = hash

	res, err := r.db.Exec(ctx,
		`UPDATE records SET slug = ?, content = ?, content_hash = ?, modified_at = ? WHERE id = ? AND kind = ?`,
		rec.Slug(), compressed, rec.ContentHash, rec.ModifiedDate, id, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("error saving record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}

	repoLogger.Debug().Str("id", string(id)).Str("kind", string(kind)).Msg("Record updated")

	r.remember(rec)
	return rec.Clone(), nil
}

func (r *DBContentRepository) Delete(ctx context.Context, kind model.Kind, id model.RecordID) error {
	res, err := r.db.Exec(ctx, `DELETE FROM records WHERE id = ? AND kind = ?`, id, kind)
	if err != nil {
		return fmt.Errorf("error deleting record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}

	r.records.Delete(id)
	r.mu.Lock()
	r.lastCount--
	r.mu.Unlock()

	repoLogger.Info().Str("id", string(id)).Str("kind", string(kind)).Msg("Record deleted")
	return nil
}

// remember caches a record written by this process so the poller does not
// report it as a background change.
func (r *DBContentRepository) remember(rec *model.Record) {
	_, existed := r.records.Get(rec.ID)
	r.records.Set(rec.ID, rec.Clone())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastModifiedTime == nil || rec.ModifiedDate.After(*r.lastModifiedTime) {
		t := rec.ModifiedDate
		r.lastModifiedTime = &t
	}
	if !existed {
		r.lastCount++
	}
}

func (r *DBContentRepository) UploadImage(ctx context.Context, file model.File, uploadContext string) (UploadResult, error) {
	obj, err := putImage(ctx, r.store, file, uploadContext, r.now())
	if err != nil {
		return UploadResult{}, err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO assets (url, object_key, content_type, size, context, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		obj.URL, obj.Key, obj.ContentType, obj.Size, uploadContext, r.now(),
	)
	if err != nil {
		// The file is stored; only the orphan sweep loses track of it.
		repoLogger.Warn().Err(err).Str("url", obj.URL).Msg("Error recording asset")
	}

	repoLogger.Info().Str("url", obj.URL).Int64("size", obj.Size).Str("content_type", obj.ContentType).Msg("Image uploaded")
	return UploadResult{URL: obj.URL}, nil
}

func (r *DBContentRepository) DeleteImage(ctx context.Context, url string) error {
	key, ok := r.store.KeyFromURL(url)
	if !ok {
		return fmt.Errorf("%s: %w", url, media.ErrUnknownURL)
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM assets WHERE url = ?`, url); err != nil {
		return fmt.Errorf("error removing asset record: %w", err)
	}

	repoLogger.Info().Str("url", url).Msg("Image deleted")
	return nil
}

func (r *DBContentRepository) TriggerRevalidation(ctx context.Context, path string) error {
	if r.revalidator == nil {
		return nil
	}
	return r.revalidator.Revalidate(ctx, path)
}

func (r *DBContentRepository) Exists(ctx context.Context, kind model.Kind, target string) (bool, error) {
	seg := targetSlug(target)
	if seg == "" {
		return false, nil
	}

	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ? AND (slug = ? OR id = ?)`, kind, seg, seg,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking %s %q: %w", kind, seg, err)
	}
	return n > 0, nil
}

// SweepOrphans deletes uploaded assets older than olderThan that no record
// references. It returns how many were removed.
func (r *DBContentRepository) SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().Add(-olderThan)

	rows, err := r.db.Query(ctx, `SELECT url FROM assets WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error querying assets: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return 0, fmt.Errorf("error scanning asset: %w", err)
		}
		candidates = append(candidates, u)
	}
	rows.Close()
	if len(candidates) == 0 {
		return 0, nil
	}

	recs, err := r.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{})
	for _, rec := range recs {
		collectStrings(rec.Fields, referenced)
	}

	removed := 0
	for _, u := range candidates {
		if _, ok := referenced[u]; ok {
			continue
		}
		if err := r.DeleteImage(ctx, u); err != nil {
			repoLogger.Error().Err(err).Str("url", u).Msg("Error deleting orphaned image")
			continue
		}
		removed++
	}

	repoLogger.Info().Int("candidates", len(candidates)).Int("removed", removed).Msg("Orphan sweep finished")
	return removed, nil
}

// Watch polls the database every interval and refreshes the cache when
// another process changed records. It returns when ctx is done.
func (r *DBContentRepository) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		repoLogger.Warn().Dur("interval", interval).Msg("Record reloading disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				repoLogger.Error().Err(err).Msg(config.ErrReloadingRecords)
			}
		}
	}
}

// Reload runs one poll: a cheap check of the latest modification time and
// row count, then a full reload comparing content hashes if either moved.
func (r *DBContentRepository) Reload(ctx context.Context) error {
	latestTime, err := r.GetLatestModifiedTime(ctx)
	if err != nil {
		return err
	}
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return fmt.Errorf("error counting records: %w", err)
	}

	r.mu.Lock()
	unchanged := count == r.lastCount &&
		(latestTime == nil || (r.lastModifiedTime != nil && !latestTime.After(*r.lastModifiedTime)))
	r.mu.Unlock()
	if unchanged {
		repoLogger.Debug().Msg("No records modified, skipping reload")
		return nil
	}

	repoLogger.Debug().Msg("Records may have changed, performing full reload")

	recs, err := r.loadAll(ctx)
	if err != nil {
		return err
	}

	cached := r.records.Snapshot()
	var changed []*model.Record
	for id, rec := range recs {
		old, ok := cached[id]
		if !ok {
			repoLogger.Info().Str("id", string(id)).Str("kind", string(rec.Kind)).Msg("New record detected")
			continue
		}
		if old.ContentHash != rec.ContentHash {
			repoLogger.Info().Str("id", string(id)).Str("kind", string(rec.Kind)).Msg("Record content changed, reloading")
			changed = append(changed, rec)
		}
	}

	r.records.SetTo(recs)
	r.mu.Lock()
	r.lastModifiedTime = latestTime
	r.lastCount = count
	r.mu.Unlock()

	if r.reloadNotifier != nil {
		for _, rec := range changed {
			r.reloadNotifier(rec.Clone())
		}
	}
	return nil
}
