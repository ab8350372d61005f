package chunker

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/model"
)

const (
	DefaultChunkSize = 1024
	DefaultOverlap   = 100
)

var (
	// The extraction step brackets every page with these textual markers.
	// They are load-bearing: page provenance is recovered from them here
	// and nowhere else.
	pageMarkerRegex = regexp.MustCompile(`(?:START|END) OF PAGE:\s*(\d+)`)
	pageStripRegex  = regexp.MustCompile(`(?:START|END) OF PAGE:\s*\d+\n?`)
)

// Chunker turns page-marked markdown into embedding-ready chunks: split by
// header hierarchy first (headers kept inside segments so they contribute
// to embedding semantics), then by size with overlap, then stamped with the
// pages referenced by the markers each segment carries.
type Chunker struct {
	chunkSize int
	overlap   int
}

func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

func (c *Chunker) Chunk(ctx context.Context, markdown string, tags model.SourceTags) ([]*model.Chunk, error) {
	logger := logutil.GetLogger(ctx)
	segments := headerSegments(markdown)

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " "}),
	)

	var final []string
	for _, segment := range segments {
		parts, err := splitter.SplitText(segment)
		if err != nil {
			return nil, fmt.Errorf("split segment: %w", err)
		}
		final = append(final, parts...)
	}

	lastPage := 1
	chunks := make([]*model.Chunk, 0, len(final))
	for _, segment := range final {
		pages, found := collectPages(segment)
		if found {
			lastPage = pages[len(pages)-1]
		} else {
			pages = []int{lastPage}
		}
		cleaned := strings.TrimSpace(pageStripRegex.ReplaceAllString(segment, ""))
		if cleaned == "" {
			continue
		}
		chunks = append(chunks, &model.Chunk{
			Text:  cleaned,
			Pages: pages,
			Tags:  tags,
		})
	}
	logger.Debug("markdown split",
		zap.Int("segments", len(segments)),
		zap.Int("chunks", len(chunks)),
		zap.Int("last_page", lastPage),
	)
	return chunks, nil
}

// headerSegments cuts the document at every H1-H3 heading, keeping each
// heading line with the text that follows it.
func headerSegments(markdown string) []string {
	source := []byte(markdown)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var cuts []int
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Level > 3 || heading.Lines().Len() == 0 {
			continue
		}
		start := heading.Lines().At(0).Start
		// Back up to the line start so the hash markers stay with the
		// segment.
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		cuts = append(cuts, start)
	}

	var segments []string
	prev := 0
	for _, cut := range cuts {
		if cut <= prev {
			continue
		}
		if segment := string(source[prev:cut]); strings.TrimSpace(segment) != "" {
			segments = append(segments, segment)
		}
		prev = cut
	}
	if segment := string(source[prev:]); strings.TrimSpace(segment) != "" {
		segments = append(segments, segment)
	}
	return segments
}

func collectPages(segment string) ([]int, bool) {
	matches := pageMarkerRegex.FindAllStringSubmatch(segment, -1)
	if len(matches) == 0 {
		return nil, false
	}
	seen := make(map[int]struct{}, len(matches))
	pages := make([]int, 0, len(matches))
	for _, match := range matches {
		page, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if _, dup := seen[page]; dup {
			continue
		}
		seen[page] = struct{}{}
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages, true
}
