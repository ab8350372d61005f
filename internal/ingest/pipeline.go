package ingest

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jauapai/jauap/internal/ai"
	"github.com/jauapai/jauap/internal/chunker"
	"github.com/jauapai/jauap/internal/extract"
	"github.com/jauapai/jauap/internal/filestore"
	"github.com/jauapai/jauap/internal/index"
	"github.com/jauapai/jauap/internal/model"
	"github.com/jauapai/jauap/internal/repo"
)

type Options struct {
	EmbedBatchSize int
	Concurrency    int
	MaxRetries     int
	RetryBackoff   time.Duration
	ProgressDir    string
}

func (o *Options) fill() {
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 16
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.ProgressDir == "" {
		o.ProgressDir = "./data/progress"
	}
}

// Request describes one textbook to ingest.
type Request struct {
	PDFPath    string
	Discipline string
	Grade      string
	Publisher  string
}

// Extractor produces the page-marked markdown of one document plus its
// page count, appending each parsed batch to progress as it goes.
type Extractor interface {
	Run(ctx context.Context, pdfPath string, progress *extract.ProgressWriter) (string, int, error)
}

// Pipeline turns a textbook PDF into indexed points: OCR in page batches,
// markdown chunking, dense+sparse embedding, then an idempotent upsert.
type Pipeline struct {
	extractor Extractor
	chunker   *chunker.Chunker
	dense     ai.IDenseEmbedder
	sparse    ai.ISparseEncoder
	store     index.Store
	runs      *repo.IngestRunRepo
	artifacts filestore.Store
	opts      Options
}

func New(extractor Extractor, ck *chunker.Chunker, dense ai.IDenseEmbedder, sparse ai.ISparseEncoder,
	store index.Store, runs *repo.IngestRunRepo, artifacts filestore.Store, opts Options) *Pipeline {
	opts.fill()
	return &Pipeline{
		extractor: extractor,
		chunker:   ck,
		dense:     dense,
		sparse:    sparse,
		store:     store,
		runs:      runs,
		artifacts: artifacts,
		opts:      opts,
	}
}

// Run executes the full pipeline for one document. The returned run record
// reflects the final state even when an intermediate stage failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.IngestRun, error) {
	now := time.Now().Unix()
	run := &model.IngestRun{
		ID:         uuid.NewString(),
		Document:   filepath.Base(req.PDFPath),
		Discipline: req.Discipline,
		Grade:      req.Grade,
		Publisher:  req.Publisher,
		Status:     model.IngestRunStatusRunning,
		Ctime:      now,
		Mtime:      now,
	}
	if p.runs != nil {
		if err := p.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("create ingest run: %w", err)
		}
	}
	if err := p.execute(ctx, req, run); err != nil {
		run.Status = model.IngestRunStatusFailed
		run.LastError = err.Error()
		p.finish(ctx, run)
		return run, err
	}
	run.Status = model.IngestRunStatusDone
	p.finish(ctx, run)
	return run, nil
}

func (p *Pipeline) execute(ctx context.Context, req Request, run *model.IngestRun) error {
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", run.ID), zap.String("document", run.Document))

	if err := p.store.EnsureFilterIndexes(ctx); err != nil {
		return fmt.Errorf("ensure filter indexes: %w", err)
	}

	progress, err := extract.NewProgressWriter(filepath.Join(p.opts.ProgressDir, run.ID+".md"))
	if err != nil {
		return fmt.Errorf("open progress file: %w", err)
	}
	markdown, totalPages, err := p.extractor.Run(ctx, req.PDFPath, progress)
	if err != nil {
		return fmt.Errorf("extract document: %w", err)
	}
	run.TotalPages = totalPages
	logger.Info("document extracted", zap.Int("total_pages", totalPages))

	p.saveArtifact(ctx, run.ID, markdown)

	chunks, err := p.chunker.Chunk(ctx, markdown, model.SourceTags{
		Discipline: req.Discipline,
		Grade:      req.Grade,
		Publisher:  req.Publisher,
	})
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document produced no chunks")
	}
	run.Chunks = len(chunks)
	logger.Info("document chunked", zap.Int("chunks", len(chunks)))

	points, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := p.withRetry(ctx, "upsert points", func() error {
		return p.store.Upsert(ctx, points)
	}); err != nil {
		return err
	}
	run.Points = len(points)
	logger.Info("points indexed", zap.Int("points", len(points)))
	return nil
}

// embedChunks embeds all chunks in fixed-size batches with bounded
// concurrency. Both vector families must succeed for every batch; a partial
// result never reaches the index. Output order matches input order
// regardless of batch completion order.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*model.Chunk) ([]*model.Point, error) {
	points := make([]*model.Point, len(chunks))
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(p.opts.Concurrency)
	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := start + p.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end
		grp.Go(func() error {
			batch := chunks[start:end]
			texts := make([]string, 0, len(batch))
			for _, chunk := range batch {
				texts = append(texts, chunk.Text)
			}
			var denseVecs [][]float32
			if err := p.withRetry(grpCtx, "embed dense batch", func() error {
				var err error
				denseVecs, err = p.dense.EmbedDocuments(grpCtx, texts)
				return err
			}); err != nil {
				return err
			}
			if len(denseVecs) != len(batch) {
				return fmt.Errorf("dense embedder returned %d vectors for %d chunks", len(denseVecs), len(batch))
			}
			var sparseVecs []model.SparseVector
			if err := p.withRetry(grpCtx, "encode sparse batch", func() error {
				var err error
				sparseVecs, err = p.sparse.EncodeDocuments(grpCtx, texts)
				return err
			}); err != nil {
				return err
			}
			if len(sparseVecs) != len(batch) {
				return fmt.Errorf("sparse encoder returned %d vectors for %d chunks", len(sparseVecs), len(batch))
			}
			for i, chunk := range batch {
				points[start+i] = &model.Point{
					ID: uuid.NewString(),
					Vectors: model.EmbeddingPair{
						Dense:  denseVecs[i],
						Sparse: sparseVecs[i],
					},
					Payload: model.PointPayload{
						Content: chunk.Text,
						Tags:    chunk.Tags,
						Pages:   chunk.Pages,
					},
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (p *Pipeline) withRetry(ctx context.Context, op string, fn func() error) error {
	logger := logutil.GetLogger(ctx)
	backoff := p.opts.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		logger.Warn("ingest stage failed", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func (p *Pipeline) saveArtifact(ctx context.Context, runID, markdown string) {
	if p.artifacts == nil {
		return
	}
	key := runID + ".md"
	body := readSeekNopCloser{bytes.NewReader([]byte(markdown))}
	if err := p.artifacts.Save(ctx, key, body, int64(len(markdown))); err != nil {
		logutil.GetLogger(ctx).Warn("failed to save parsed artifact", zap.String("key", key), zap.Error(err))
	}
}

func (p *Pipeline) finish(ctx context.Context, run *model.IngestRun) {
	run.Mtime = time.Now().Unix()
	if p.runs == nil {
		return
	}
	if err := p.runs.Finish(ctx, run); err != nil {
		logutil.GetLogger(ctx).Warn("failed to update ingest run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error {
	return nil
}
