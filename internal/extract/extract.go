package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// PageMarkup is the parsed markdown of one absolute page of the source
// document. Page numbers never reset across batches.
type PageMarkup struct {
	Page     int
	Markdown string
}

// Parser turns a page range of a PDF into markdown, one entry per page,
// with absolute page numbers.
type Parser interface {
	Name() string
	ParsePages(ctx context.Context, pdfPath string, first, last int) ([]PageMarkup, error)
}

type Options struct {
	BatchPages   int
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

func (o *Options) fill() {
	if o.BatchPages <= 0 {
		o.BatchPages = 2
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 10
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
}

// Extractor drives a Parser over a whole document in page batches,
// bracketing every page with START/END OF PAGE markers carrying the
// absolute page number. Each successfully parsed batch is appended to the
// progress sink before the next batch starts, so an aborted run keeps
// everything parsed so far.
type Extractor struct {
	parser Parser
	opts   Options
}

func New(parser Parser, opts Options) *Extractor {
	opts.fill()
	return &Extractor{parser: parser, opts: opts}
}

// Run extracts the full document and returns the marked-up markdown plus
// the page count. progress may be nil.
func (e *Extractor) Run(ctx context.Context, pdfPath string, progress *ProgressWriter) (string, int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("pdf", pdfPath), zap.String("parser", e.parser.Name()))

	total, err := PageCount(pdfPath)
	if err != nil {
		return "", 0, fmt.Errorf("count pages: %w", err)
	}
	if total == 0 {
		return "", 0, fmt.Errorf("document %s has no pages", pdfPath)
	}
	logger.Info("extraction started", zap.Int("total_pages", total), zap.Int("batch_pages", e.opts.BatchPages))

	var full strings.Builder
	for first := 1; first <= total; first += e.opts.BatchPages {
		last := first + e.opts.BatchPages - 1
		if last > total {
			last = total
		}
		batch, err := e.parseBatch(ctx, pdfPath, first, last)
		if err != nil {
			return "", 0, fmt.Errorf("parse pages %d-%d of %s: %w", first, last, pdfPath, err)
		}
		if progress != nil {
			if err := progress.Append(batch); err != nil {
				return "", 0, fmt.Errorf("persist pages %d-%d: %w", first, last, err)
			}
		}
		full.WriteString(batch)
		logger.Debug("batch extracted", zap.Int("first", first), zap.Int("last", last))
	}
	return cleanFences(full.String()), total, nil
}

func (e *Extractor) parseBatch(ctx context.Context, pdfPath string, first, last int) (string, error) {
	logger := logutil.GetLogger(ctx)
	var lastErr error
	backoff := e.opts.RetryBackoff
	for attempt := 1; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > e.opts.MaxBackoff {
				backoff = e.opts.MaxBackoff
			}
		}
		pages, err := e.parser.ParsePages(ctx, pdfPath, first, last)
		if err == nil && len(pages) == 0 {
			err = fmt.Errorf("parser returned no pages")
		}
		if err != nil {
			lastErr = err
			logger.Warn("batch parse failed",
				zap.Int("first", first),
				zap.Int("last", last),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		return markupPages(pages), nil
	}
	return "", lastErr
}

func markupPages(pages []PageMarkup) string {
	var sb strings.Builder
	for _, page := range pages {
		fmt.Fprintf(&sb, "START OF PAGE: %d\n", page.Page)
		sb.WriteString(page.Markdown)
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "\nEND OF PAGE: %d\n", page.Page)
	}
	return sb.String()
}

// cleanFences drops code-fence wrappers some OCR backends put around whole
// pages; they would confuse the header splitter downstream.
func cleanFences(markdown string) string {
	markdown = strings.ReplaceAll(markdown, "```markdown", "")
	return strings.ReplaceAll(markdown, "```", "")
}
