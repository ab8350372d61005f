package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jauapai/jauap/internal/model"
)

// Config selects and parameterizes a store backend. DB is the shared
// process-wide handle for SQL-backed stores.
type Config struct {
	Type      string
	DB        *sql.DB
	Table     string
	DenseDim  int
	SparseDim int
}

// QueryParams describe one hybrid search: two filtered prefetch rankings
// (dense, sparse), fused by reciprocal rank, capped at FinalLimit.
type QueryParams struct {
	Dense         []float32
	Sparse        model.SparseVector
	Filter        model.Filter
	PrefetchLimit int
	FinalLimit    int
}

// Store persists indexed points and answers hybrid similarity queries.
// Implementations must tolerate concurrent upserts and queries.
type Store interface {
	// Upsert is idempotent by point id; an id collision overwrites both
	// vectors and payload.
	Upsert(ctx context.Context, points []*model.Point) error
	// EnsureFilterIndexes declares the metadata fields filterable. Required
	// once on a fresh collection before filtered queries are reliable.
	EnsureFilterIndexes(ctx context.Context) error
	Query(ctx context.Context, params QueryParams) ([]*model.Candidate, error)
	// Ping reports whether the collection is reachable and initialized.
	Ping(ctx context.Context) error
}

type Factory func(ctx context.Context, cfg Config) (Store, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func New(ctx context.Context, cfg Config) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("index type is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported index type: %s", cfg.Type)
	}
	return factory(ctx, cfg)
}
