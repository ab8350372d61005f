package model

// SourceTags are the classification labels assigned once per ingested
// textbook and stamped on every chunk produced from it.
type SourceTags struct {
	Discipline string `json:"discipline"`
	Grade      string `json:"grade"`
	Publisher  string `json:"publisher"`
}

// Chunk is a bounded text segment cut from a parsed document, with the
// page numbers it was extracted from. Text never contains page markers.
type Chunk struct {
	Text  string     `json:"text"`
	Pages []int      `json:"pages"`
	Tags  SourceTags `json:"tags"`
}
