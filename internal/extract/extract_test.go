package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedParser struct {
	pageCount int
	failures  map[int]int // first page -> remaining failures
	calls     []string
	broken    bool
}

func (p *scriptedParser) Name() string { return "scripted" }

func (p *scriptedParser) ParsePages(_ context.Context, _ string, first, last int) ([]PageMarkup, error) {
	p.calls = append(p.calls, fmt.Sprintf("%d-%d", first, last))
	if p.broken {
		return nil, errors.New("ocr backend down")
	}
	if remaining := p.failures[first]; remaining > 0 {
		p.failures[first] = remaining - 1
		return nil, errors.New("transient ocr error")
	}
	var pages []PageMarkup
	for page := first; page <= last; page++ {
		pages = append(pages, PageMarkup{Page: page, Markdown: fmt.Sprintf("page %d body", page)})
	}
	return pages, nil
}

func TestMarkupPages_BracketsEveryPageWithAbsoluteNumbers(t *testing.T) {
	got := markupPages([]PageMarkup{
		{Page: 3, Markdown: "third"},
		{Page: 4, Markdown: "fourth"},
	})
	require.Contains(t, got, "START OF PAGE: 3\nthird")
	require.Contains(t, got, "END OF PAGE: 3")
	require.Contains(t, got, "START OF PAGE: 4\nfourth")
	require.Contains(t, got, "END OF PAGE: 4")
	require.Less(t, indexOfSub(got, "END OF PAGE: 3"), indexOfSub(got, "START OF PAGE: 4"))
}

func TestParseBatch_RetriesUntilSuccess(t *testing.T) {
	parser := &scriptedParser{failures: map[int]int{1: 2}}
	extractor := New(parser, Options{BatchPages: 2, MaxRetries: 5, RetryBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	got, err := extractor.parseBatch(context.Background(), "book.pdf", 1, 2)
	require.NoError(t, err)
	require.Contains(t, got, "START OF PAGE: 1")
	require.Contains(t, got, "page 2 body")
	require.Len(t, parser.calls, 3)
}

func TestParseBatch_ExhaustedRetriesReturnLastError(t *testing.T) {
	parser := &scriptedParser{broken: true}
	extractor := New(parser, Options{BatchPages: 2, MaxRetries: 3, RetryBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := extractor.parseBatch(context.Background(), "book.pdf", 1, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ocr backend down")
	require.Len(t, parser.calls, 3)
}

func TestParseBatch_EmptyResultIsRetriedAsFailure(t *testing.T) {
	parser := &emptyParser{}
	extractor := New(parser, Options{BatchPages: 2, MaxRetries: 2, RetryBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := extractor.parseBatch(context.Background(), "book.pdf", 1, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no pages")
	require.Equal(t, 2, parser.calls)
}

type emptyParser struct {
	calls int
}

func (p *emptyParser) Name() string { return "empty" }

func (p *emptyParser) ParsePages(_ context.Context, _ string, _, _ int) ([]PageMarkup, error) {
	p.calls++
	return nil, nil
}

func TestProgressWriter_AppendsAcrossBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress", "run.md")
	writer, err := NewProgressWriter(path)
	require.NoError(t, err)

	require.NoError(t, writer.Append("batch one\n"))
	require.NoError(t, writer.Append("batch two\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "batch one\nbatch two\n", string(data))
}

func TestCleanFences_RemovesCodeFenceWrappers(t *testing.T) {
	got := cleanFences("```markdown\n# Title\nbody\n```\n")
	require.NotContains(t, got, "```")
	require.Contains(t, got, "# Title")
}

func indexOfSub(haystack, needle string) int {
	return strings.Index(haystack, needle)
}
