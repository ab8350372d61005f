package model

const (
	IngestRunStatusRunning = "running"
	IngestRunStatusDone    = "done"
	IngestRunStatusFailed  = "failed"
)

// IngestRun is the bookkeeping record of one document ingestion.
type IngestRun struct {
	ID         string `json:"id"`
	Document   string `json:"document"`
	Discipline string `json:"discipline"`
	Grade      string `json:"grade"`
	Publisher  string `json:"publisher"`
	TotalPages int    `json:"total_pages"`
	Chunks     int    `json:"chunks"`
	Points     int    `json:"points"`
	Status     string `json:"status"`
	LastError  string `json:"last_error"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}

// EmbeddingCache is a persisted dense embedding keyed by model, task type
// and content hash, reused across ingestion re-runs.
type EmbeddingCache struct {
	ModelName   string
	TaskType    string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
