package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jauapai/jauap/internal/model"
)

const (
	defaultTable     = "textbook_points"
	defaultDenseDim  = 1024
	defaultSparseDim = 250002 // bge-m3 vocabulary size
)

type pgStore struct {
	db        *sql.DB
	table     string
	denseDim  int
	sparseDim int
}

func init() {
	Register("pgvector", createPGStore)
}

func createPGStore(ctx context.Context, cfg Config) (Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("pgvector: db handle is required")
	}
	store := &pgStore{
		db:        cfg.DB,
		table:     cfg.Table,
		denseDim:  cfg.DenseDim,
		sparseDim: cfg.SparseDim,
	}
	if store.table == "" {
		store.table = defaultTable
	}
	if store.denseDim <= 0 {
		store.denseDim = defaultDenseDim
	}
	if store.sparseDim <= 0 {
		store.sparseDim = defaultSparseDim
	}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *pgStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			discipline TEXT NOT NULL DEFAULT '',
			grade TEXT NOT NULL DEFAULT '',
			publisher TEXT NOT NULL DEFAULT '',
			pages INTEGER[] NOT NULL DEFAULT '{}',
			dense vector(%d) NOT NULL,
			sparse sparsevec(%d) NOT NULL,
			ctime BIGINT NOT NULL
		)
	`, pq.QuoteIdentifier(s.table), s.denseDim, s.sparseDim)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	return nil
}

func (s *pgStore) EnsureFilterIndexes(ctx context.Context) error {
	for _, field := range []string{"discipline", "grade", "publisher"} {
		stmt := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			pq.QuoteIdentifier(s.table+"_"+field+"_idx"),
			pq.QuoteIdentifier(s.table),
			field,
		)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: index field %s: %w", field, err)
		}
	}
	return nil
}

func (s *pgStore) Upsert(ctx context.Context, points []*model.Point) (err error) {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, discipline, grade, publisher, pages, dense, sparse, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, EXTRACT(EPOCH FROM NOW())::BIGINT)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			discipline = EXCLUDED.discipline,
			grade = EXCLUDED.grade,
			publisher = EXCLUDED.publisher,
			pages = EXCLUDED.pages,
			dense = EXCLUDED.dense,
			sparse = EXCLUDED.sparse
	`, pq.QuoteIdentifier(s.table))
	for _, point := range points {
		if len(point.Vectors.Dense) != s.denseDim {
			return fmt.Errorf("pgvector: point %s dense dimension %d, collection expects %d",
				point.ID, len(point.Vectors.Dense), s.denseDim)
		}
		if len(point.Vectors.Sparse) == 0 {
			return fmt.Errorf("pgvector: point %s has no sparse vector", point.ID)
		}
		_, err = tx.ExecContext(ctx, stmt,
			point.ID,
			point.Payload.Content,
			point.Payload.Tags.Discipline,
			point.Payload.Tags.Grade,
			point.Payload.Tags.Publisher,
			pq.Array(point.Payload.Pages),
			pgvector.NewVector(point.Vectors.Dense),
			pgvector.NewSparseVectorFromMap(point.Vectors.Sparse, int32(s.sparseDim)),
		)
		if err != nil {
			return fmt.Errorf("pgvector: upsert point %s: %w", point.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

func (s *pgStore) Query(ctx context.Context, params QueryParams) ([]*model.Candidate, error) {
	if len(params.Dense) != s.denseDim {
		return nil, fmt.Errorf("pgvector: query dense dimension %d, collection expects %d",
			len(params.Dense), s.denseDim)
	}
	where, args := buildFilterClause(params.Filter)

	denseIDs, err := s.prefetch(ctx, where, args, "dense <=> $%d", pgvector.NewVector(params.Dense), params.PrefetchLimit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: dense prefetch: %w", err)
	}
	sparseIDs, err := s.prefetch(ctx, where, args, "sparse <#> $%d", pgvector.NewSparseVectorFromMap(params.Sparse, int32(s.sparseDim)), params.PrefetchLimit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: sparse prefetch: %w", err)
	}

	fused := fuseRRF(denseIDs, sparseIDs, DefaultRRFK, params.FinalLimit)
	if len(fused) == 0 {
		return nil, nil
	}
	return s.loadPayloads(ctx, fused)
}

func (s *pgStore) prefetch(ctx context.Context, where string, filterArgs []interface{}, orderTmpl string, vec interface{}, limit int) ([]string, error) {
	args := make([]interface{}, 0, len(filterArgs)+2)
	args = append(args, filterArgs...)
	args = append(args, vec)
	order := fmt.Sprintf(orderTmpl, len(args))
	args = append(args, limit)
	query := fmt.Sprintf("SELECT id FROM %s%s ORDER BY %s LIMIT $%d",
		pq.QuoteIdentifier(s.table), where, order, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgStore) loadPayloads(ctx context.Context, fused []fusedPoint) ([]*model.Candidate, error) {
	ids := make([]string, 0, len(fused))
	for _, fp := range fused {
		ids = append(ids, fp.ID)
	}
	query := fmt.Sprintf(
		"SELECT id, content, discipline, grade, publisher, pages FROM %s WHERE id = ANY($1)",
		pq.QuoteIdentifier(s.table),
	)
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("pgvector: load payloads: %w", err)
	}
	defer rows.Close()
	byID := make(map[string]*model.Candidate, len(ids))
	for rows.Next() {
		cand := &model.Candidate{}
		var pages pq.Int64Array
		if err := rows.Scan(&cand.ID, &cand.Content, &cand.Tags.Discipline, &cand.Tags.Grade, &cand.Tags.Publisher, &pages); err != nil {
			return nil, err
		}
		cand.Pages = make([]int, 0, len(pages))
		for _, p := range pages {
			cand.Pages = append(cand.Pages, int(p))
		}
		byID[cand.ID] = cand
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*model.Candidate, 0, len(fused))
	for _, fp := range fused {
		cand := byID[fp.ID]
		if cand == nil {
			continue
		}
		cand.FusedScore = fp.Score
		out = append(out, cand)
	}
	return out, nil
}

func (s *pgStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pgvector: ping: %w", err)
	}
	var reg sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT to_regclass($1)::TEXT", s.table).Scan(&reg); err != nil {
		return fmt.Errorf("pgvector: check collection: %w", err)
	}
	if !reg.Valid {
		return fmt.Errorf("pgvector: collection %s not initialized", s.table)
	}
	return nil
}

func buildFilterClause(filter model.Filter) (string, []interface{}) {
	fields := filter.Fields()
	if len(fields) == 0 {
		return "", nil
	}
	// Fixed field order keeps generated SQL stable.
	conds := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields))
	for _, field := range []string{"discipline", "grade", "publisher"} {
		value, ok := fields[field]
		if !ok {
			continue
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
