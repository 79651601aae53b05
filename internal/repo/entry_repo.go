package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/pixelgate/pixelgate/internal/model"
	"github.com/pixelgate/pixelgate/internal/pkg/dbutil"
	appErr "github.com/pixelgate/pixelgate/internal/pkg/errors"
)

// EntryRepo is the metadata half of the exact-match store.
type EntryRepo struct {
	db *sql.DB
}

func NewEntryRepo(db *sql.DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// Put upserts the entry. Entries are immutable in practice; the upsert only
// matters for the concurrent-miss race where two requests generate the same
// key and last write wins.
func (r *EntryRepo) Put(ctx context.Context, entry *model.CacheEntry) error {
	sqlStr := `
		INSERT INTO cache_entries (cache_key, prompt, model, width, height, seed, content_type, size, ctime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			ctime = EXCLUDED.ctime
	`
	args := []interface{}{
		entry.Key,
		entry.Prompt,
		entry.Model,
		entry.Width,
		entry.Height,
		nullableSeed(entry.Seed),
		entry.ContentType,
		entry.Size,
		entry.Ctime,
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EntryRepo) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	where := map[string]interface{}{
		"cache_key": key,
	}
	fields := []string{"cache_key", "prompt", "model", "width", "height", "seed", "content_type", "size", "ctime"}
	sqlStr, args, err := builder.BuildSelect("cache_entries", where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var entry model.CacheEntry
	var seed sql.NullInt64
	if err := row.Scan(&entry.Key, &entry.Prompt, &entry.Model, &entry.Width, &entry.Height,
		&seed, &entry.ContentType, &entry.Size, &entry.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if seed.Valid {
		entry.Seed = &seed.Int64
	}
	return &entry, nil
}

// DeleteBefore removes entries older than cutoff and reports the affected
// keys so the caller can clean their blobs.
func (r *EntryRepo) DeleteBefore(ctx context.Context, cutoff int64) ([]string, error) {
	sqlStr := `DELETE FROM cache_entries WHERE ctime < ? RETURNING cache_key`
	args := []interface{}{cutoff}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func nullableSeed(seed *int64) interface{} {
	if seed == nil {
		return nil
	}
	return *seed
}
