package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/pixelgate/pixelgate/internal/model"
	"github.com/pixelgate/pixelgate/internal/pkg/dbutil"
	appErr "github.com/pixelgate/pixelgate/internal/pkg/errors"
)

// VectorRepo stores prompt embeddings and answers nearest-neighbour
// queries scoped to one model/shape bucket.
type VectorRepo struct {
	db *sql.DB
}

func NewVectorRepo(db *sql.DB) *VectorRepo {
	return &VectorRepo{db: db}
}

// Insert adds an embedding row. A duplicate key reports appErr.ErrConflict
// so the caller can treat the concurrent-insert race as benign.
func (r *VectorRepo) Insert(ctx context.Context, rec *model.EmbeddingRecord) error {
	sqlStr := `
		INSERT INTO cache_embeddings (cache_key, model, width, height, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, sqlStr,
		rec.Key, rec.Model, rec.Width, rec.Height, pgvector.NewVector(rec.Embedding), rec.Ctime)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// Query returns up to topK neighbours of vec within the filter bucket,
// ordered by descending cosine similarity.
func (r *VectorRepo) Query(ctx context.Context, vec []float32, filter model.VectorFilter, topK int) ([]*model.SimilarityMatch, error) {
	sqlStr := `
		SELECT cache_key, 1 - (embedding <=> $1) AS score
		FROM cache_embeddings
		WHERE model = $2 AND width = $3 AND height = $4
		ORDER BY embedding <=> $1
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, sqlStr,
		pgvector.NewVector(vec), filter.Model, filter.Width, filter.Height, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []*model.SimilarityMatch
	for rows.Next() {
		var m model.SimilarityMatch
		if err := rows.Scan(&m.Key, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func (r *VectorRepo) Delete(ctx context.Context, key string) error {
	sqlStr := `DELETE FROM cache_embeddings WHERE cache_key = $1`
	_, err := r.db.ExecContext(ctx, sqlStr, key)
	return err
}

func (r *VectorRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr := `DELETE FROM cache_embeddings WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, sqlStr, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
