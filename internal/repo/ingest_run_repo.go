package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/jauapai/jauap/internal/model"
	"github.com/jauapai/jauap/internal/pkg/dbutil"
	appErr "github.com/jauapai/jauap/internal/pkg/errs"
)

type IngestRunRepo struct {
	db *sql.DB
}

func NewIngestRunRepo(db *sql.DB) *IngestRunRepo {
	return &IngestRunRepo{db: db}
}

func (r *IngestRunRepo) Create(ctx context.Context, run *model.IngestRun) error {
	data := map[string]interface{}{
		"id":          run.ID,
		"document":    run.Document,
		"discipline":  run.Discipline,
		"grade":       run.Grade,
		"publisher":   run.Publisher,
		"total_pages": run.TotalPages,
		"chunks":      run.Chunks,
		"points":      run.Points,
		"status":      run.Status,
		"last_error":  run.LastError,
		"ctime":       run.Ctime,
		"mtime":       run.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("ingest_runs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err = r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *IngestRunRepo) Finish(ctx context.Context, run *model.IngestRun) error {
	where := map[string]interface{}{
		"id": run.ID,
	}
	update := map[string]interface{}{
		"total_pages": run.TotalPages,
		"chunks":      run.Chunks,
		"points":      run.Points,
		"status":      run.Status,
		"last_error":  run.LastError,
		"mtime":       run.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("ingest_runs", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *IngestRunRepo) Get(ctx context.Context, runID string) (*model.IngestRun, error) {
	where := map[string]interface{}{
		"id": runID,
	}
	sqlStr, args, err := builder.BuildSelect("ingest_runs", where, ingestRunFields())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	run, err := scanIngestRun(rows)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *IngestRunRepo) List(ctx context.Context, limit int) ([]*model.IngestRun, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
		"_limit":   []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("ingest_runs", where, ingestRunFields())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []*model.IngestRun
	for rows.Next() {
		run, err := scanIngestRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func ingestRunFields() []string {
	return []string{
		"id", "document", "discipline", "grade", "publisher",
		"total_pages", "chunks", "points", "status", "last_error",
		"ctime", "mtime",
	}
}

func scanIngestRun(rows *sql.Rows) (*model.IngestRun, error) {
	var run model.IngestRun
	if err := rows.Scan(
		&run.ID,
		&run.Document,
		&run.Discipline,
		&run.Grade,
		&run.Publisher,
		&run.TotalPages,
		&run.Chunks,
		&run.Points,
		&run.Status,
		&run.LastError,
		&run.Ctime,
		&run.Mtime,
	); err != nil {
		return nil, err
	}
	return &run, nil
}
