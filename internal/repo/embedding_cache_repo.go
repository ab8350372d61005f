package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jauapai/jauap/internal/model"
)

const embeddingCacheTable = "embedding_cache"

// EmbeddingCacheRepo persists document embeddings keyed by model, task type
// and content hash, so re-ingesting an unchanged textbook never re-embeds it.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	query := fmt.Sprintf(
		"SELECT embedding FROM %s WHERE model_name = $1 AND task_type = $2 AND content_hash = $3",
		embeddingCacheTable,
	)
	var embedding pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, modelName, taskType, contentHash).Scan(&embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query embedding cache: %w", err)
	}
	return embedding.Slice(), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	query := fmt.Sprintf(`INSERT INTO %s (model_name, task_type, content_hash, embedding, ctime)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (model_name, task_type, content_hash)
DO UPDATE SET embedding = EXCLUDED.embedding, ctime = EXCLUDED.ctime`, embeddingCacheTable)
	if _, err := r.db.ExecContext(ctx, query,
		item.ModelName, item.TaskType, item.ContentHash,
		pgvector.NewVector(item.Embedding), item.Ctime,
	); err != nil {
		return fmt.Errorf("save embedding cache: %w", err)
	}
	return nil
}

// DeleteBefore removes entries older than cutoff (unix seconds) and reports
// how many rows went away.
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE ctime < $1", embeddingCacheTable)
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune embedding cache: %w", err)
	}
	return res.RowsAffected()
}
