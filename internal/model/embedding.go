package model

// RecordEmbedding indexes one upload record for semantic retrieval.
type RecordEmbedding struct {
	ObjectKey   string    `json:"object_key"`
	Version     string    `json:"version"`
	Embedding   []float32 `json:"embedding"`
	ContentHash string    `json:"content_hash"`
	Mtime       int64     `json:"mtime"`
}
