package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jauapai/jauap/internal/chunker"
	"github.com/jauapai/jauap/internal/extract"
	"github.com/jauapai/jauap/internal/index"
	"github.com/jauapai/jauap/internal/model"
)

type lengthDense struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *lengthDense) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (f *lengthDense) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("transient embed error")
	}
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (f *lengthDense) ModelName() string { return "length-dense" }

type lengthSparse struct {
	err error
}

func (f *lengthSparse) EncodeQuery(_ context.Context, text string) (model.SparseVector, error) {
	return model.SparseVector{0: float32(len(text))}, nil
}

func (f *lengthSparse) EncodeDocuments(_ context.Context, texts []string) ([]model.SparseVector, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.SparseVector, len(texts))
	for i, text := range texts {
		out[i] = model.SparseVector{0: float32(len(text))}
	}
	return out, nil
}

func (f *lengthSparse) ModelName() string { return "length-sparse" }

func testChunks(n int) []*model.Chunk {
	chunks := make([]*model.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, &model.Chunk{
			Text:  strings.Repeat("x", i+1),
			Pages: []int{i + 1},
			Tags:  model.SourceTags{Discipline: "Биология"},
		})
	}
	return chunks
}

func testPipeline(dense *lengthDense, sparse *lengthSparse) *Pipeline {
	return New(nil, nil, dense, sparse, nil, nil, nil, Options{
		EmbedBatchSize: 2,
		Concurrency:    3,
		MaxRetries:     3,
		RetryBackoff:   time.Millisecond,
	})
}

func TestEmbedChunks_OutputAlignedWithInputOrder(t *testing.T) {
	dense := &lengthDense{}
	sparse := &lengthSparse{}
	chunks := testChunks(7)

	points, err := testPipeline(dense, sparse).embedChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, points, len(chunks))
	for i, point := range points {
		require.NotNil(t, point)
		require.Equal(t, chunks[i].Text, point.Payload.Content)
		require.Equal(t, chunks[i].Pages, point.Payload.Pages)
		require.Equal(t, float32(i+1), point.Vectors.Dense[0])
		require.Equal(t, float32(i+1), point.Vectors.Sparse[0])
		require.NotEmpty(t, point.ID)
	}
}

func TestEmbedChunks_SparseFailureProducesNoPoints(t *testing.T) {
	dense := &lengthDense{}
	sparse := &lengthSparse{err: errors.New("encoder offline")}

	points, err := testPipeline(dense, sparse).embedChunks(context.Background(), testChunks(4))
	require.Error(t, err)
	require.Nil(t, points)
}

func TestEmbedChunks_TransientDenseFailureIsRetried(t *testing.T) {
	dense := &lengthDense{failures: 1}
	sparse := &lengthSparse{}
	chunks := testChunks(2)

	points, err := testPipeline(dense, sparse).embedChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.GreaterOrEqual(t, dense.calls, 2)
}

type fixedExtractor struct {
	markdown string
	pages    int
	err      error
}

func (f *fixedExtractor) Run(_ context.Context, _ string, _ *extract.ProgressWriter) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.markdown, f.pages, nil
}

func fullPipeline(extractor Extractor, sparse *lengthSparse, progressDir string) *Pipeline {
	return New(extractor, chunker.New(1024, 100), &lengthDense{}, sparse, index.NewMemoryStore(), nil, nil, Options{
		EmbedBatchSize: 2,
		Concurrency:    2,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
		ProgressDir:    progressDir,
	})
}

func TestRun_SuccessfulDocumentFinishesDone(t *testing.T) {
	extractor := &fixedExtractor{
		markdown: "START OF PAGE: 1\nHello world\nEND OF PAGE: 1\n",
		pages:    1,
	}
	pipeline := fullPipeline(extractor, &lengthSparse{}, t.TempDir())

	run, err := pipeline.Run(context.Background(), Request{
		PDFPath:    "biology.pdf",
		Discipline: "Биология",
		Grade:      "7",
	})
	require.NoError(t, err)
	require.Equal(t, model.IngestRunStatusDone, run.Status)
	require.Equal(t, "biology.pdf", run.Document)
	require.Equal(t, 1, run.TotalPages)
	require.Equal(t, 1, run.Chunks)
	require.Equal(t, 1, run.Points)
	require.Empty(t, run.LastError)
	require.NotEmpty(t, run.ID)
}

func TestRun_EmbedFailureFinishesFailed(t *testing.T) {
	extractor := &fixedExtractor{
		markdown: "START OF PAGE: 1\nHello world\nEND OF PAGE: 1\n",
		pages:    1,
	}
	pipeline := fullPipeline(extractor, &lengthSparse{err: errors.New("encoder offline")}, t.TempDir())

	run, err := pipeline.Run(context.Background(), Request{PDFPath: "biology.pdf"})
	require.Error(t, err)
	require.Equal(t, model.IngestRunStatusFailed, run.Status)
	require.Contains(t, run.LastError, "encoder offline")
	require.Zero(t, run.Points)
}

func TestRun_ExtractionFailureFinishesFailed(t *testing.T) {
	extractor := &fixedExtractor{err: errors.New("ocr backend down")}
	pipeline := fullPipeline(extractor, &lengthSparse{}, t.TempDir())

	run, err := pipeline.Run(context.Background(), Request{PDFPath: "biology.pdf"})
	require.Error(t, err)
	require.Equal(t, model.IngestRunStatusFailed, run.Status)
	require.Contains(t, run.LastError, "ocr backend down")
}

func TestWithRetry_ExhaustionWrapsLastError(t *testing.T) {
	pipeline := testPipeline(&lengthDense{}, &lengthSparse{})
	attempts := 0
	err := pipeline.withRetry(context.Background(), "embed dense batch", func() error {
		attempts++
		return errors.New("still failing")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "embed dense batch")
	require.Contains(t, err.Error(), "still failing")
	require.Equal(t, 3, attempts)
}
