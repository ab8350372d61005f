package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/ai"
	"github.com/jauapai/jauap/internal/model"
)

// WrapLruCacheToSparseEncoder keeps recent query lexical weights in memory,
// the sparse counterpart of WrapLruCacheToDenseEmbedder.
func WrapLruCacheToSparseEncoder(e ai.ISparseEncoder, size int, ttl time.Duration) ai.ISparseEncoder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruSparseEncoder{
		next:  e,
		cache: expirable.NewLRU[string, model.SparseVector](size, nil, ttl),
	}
}

type lruSparseEncoder struct {
	next  ai.ISparseEncoder
	cache *expirable.LRU[string, model.SparseVector]
}

func (l *lruSparseEncoder) EncodeQuery(ctx context.Context, text string) (model.SparseVector, error) {
	if l == nil || l.next == nil {
		return nil, nil
	}
	cacheKey, _, _ := buildCacheKey(l.next.ModelName(), ai.TaskTypeQuery, text)
	if cached, ok := l.cache.Get(cacheKey); ok {
		logutil.GetLogger(ctx).Debug("sparse cache hit (lru)", zap.String("task_type", ai.TaskTypeQuery))
		return cloneSparse(cached), nil
	}
	res, err := l.next.EncodeQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(cacheKey, cloneSparse(res))
	return res, nil
}

func (l *lruSparseEncoder) EncodeDocuments(ctx context.Context, texts []string) ([]model.SparseVector, error) {
	if l == nil || l.next == nil {
		return nil, nil
	}
	return l.next.EncodeDocuments(ctx, texts)
}

func (l *lruSparseEncoder) ModelName() string {
	if l == nil || l.next == nil {
		return ""
	}
	return l.next.ModelName()
}

func cloneSparse(v model.SparseVector) model.SparseVector {
	if len(v) == 0 {
		return nil
	}
	clone := make(model.SparseVector, len(v))
	for k, w := range v {
		clone[k] = w
	}
	return clone
}
