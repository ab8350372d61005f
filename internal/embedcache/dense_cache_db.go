package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/ai"
	"github.com/jauapai/jauap/internal/model"
	"github.com/jauapai/jauap/internal/repo"
)

// WrapDBCacheToDenseEmbedder persists document embeddings so that re-running
// ingestion for an already processed textbook does not re-embed every chunk.
func WrapDBCacheToDenseEmbedder(e ai.IDenseEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IDenseEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbDenseEmbedder{next: e, repo: cacheRepo}
}

type dbDenseEmbedder struct {
	next ai.IDenseEmbedder
	repo *repo.EmbeddingCacheRepo
}

func (d *dbDenseEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	return d.next.EmbedQuery(ctx, text)
}

func (d *dbDenseEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), ai.TaskTypeDocument, text)
		hashes[i] = contentHash
		values, ok, err := d.repo.Get(ctx, modelName, ai.TaskTypeDocument, contentHash)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = values
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit for full batch (db)", zap.Int("count", len(texts)))
		return results, nil
	}
	pending := make([]string, 0, len(missing))
	for _, idx := range missing {
		pending = append(pending, texts[idx])
	}
	embedded, err := d.next.EmbedDocuments(ctx, pending)
	if err != nil {
		return nil, err
	}
	_, _, modelName := buildCacheKey(d.next.ModelName(), ai.TaskTypeDocument, "")
	now := time.Now().Unix()
	for i, idx := range missing {
		results[idx] = embedded[i]
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    ai.TaskTypeDocument,
			ContentHash: hashes[idx],
			Embedding:   embedded[i],
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return results, nil
}

func (d *dbDenseEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}
