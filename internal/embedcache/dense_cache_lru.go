package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/ai"
)

// WrapLruCacheToDenseEmbedder keeps recent query embeddings in memory so
// repeated questions skip the embedding API round trip.
func WrapLruCacheToDenseEmbedder(e ai.IDenseEmbedder, size int, ttl time.Duration) ai.IDenseEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruDenseEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruDenseEmbedder struct {
	next  ai.IDenseEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruDenseEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if l == nil || l.next == nil {
		return nil, nil
	}
	cacheKey, _, _ := buildCacheKey(l.next.ModelName(), ai.TaskTypeQuery, text)
	if cached, ok := l.cache.Get(cacheKey); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", ai.TaskTypeQuery))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(cacheKey, cloneEmbedding(res))
	return res, nil
}

func (l *lruDenseEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if l == nil || l.next == nil {
		return nil, nil
	}
	return l.next.EmbedDocuments(ctx, texts)
}

func (l *lruDenseEmbedder) ModelName() string {
	if l == nil || l.next == nil {
		return ""
	}
	return l.next.ModelName()
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
