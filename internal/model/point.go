package model

// SparseVector maps lexical token ids to positive weights.
type SparseVector map[int32]float32

// EmbeddingPair holds the two vector families computed for one text.
// A point is never stored with only one of them.
type EmbeddingPair struct {
	Dense  []float32
	Sparse SparseVector
}

type PointPayload struct {
	Content string     `json:"content"`
	Tags    SourceTags `json:"tags"`
	Pages   []int      `json:"pages"`
}

// Point is the atomic unit stored in the vector index.
type Point struct {
	ID      string
	Vectors EmbeddingPair
	Payload PointPayload
}

// Candidate is one retrieval result, ordered by fused score. Relevance is
// only meaningful when Reranked is true; the rerank fallback path returns
// candidates in fusion order without scores.
type Candidate struct {
	ID         string
	Content    string
	Tags       SourceTags
	Pages      []int
	FusedScore float64
	Relevance  float64
	Reranked   bool
}

// Citation is the per-passage provenance returned alongside an answer.
type Citation struct {
	Discipline string `json:"discipline"`
	Grade      string `json:"grade"`
	Publisher  string `json:"publisher"`
	Pages      []int  `json:"pages"`
}
