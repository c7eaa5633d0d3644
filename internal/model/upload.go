package model

// UploadRecord is the persisted metadata for one ingested file. The record is
// keyed by (ObjectKey, Version) and is immutable after creation.
type UploadRecord struct {
	ID                 string   `json:"id"`
	Version            string   `json:"version"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	Size               int64    `json:"size"`
	Summary            string   `json:"summary"`
	KeyTopics          []string `json:"key_topics"`
	DataClassification string   `json:"data_classification"`
	UploadTimestamp    string   `json:"upload_timestamp"`
	ObjectKey          string   `json:"s3_key"`
	Bucket             string   `json:"s3_bucket"`
	ContentType        string   `json:"content_type"`
	LastModified       string   `json:"last_modified"`
}

// BatchResult aggregates one multi-file ingest request.
type BatchResult struct {
	Files   []UploadRecord
	Errors  []string
	Total   int
	Success int
	Failed  int
}

// FileAnalysis is the classification the model produces for one file.
type FileAnalysis struct {
	Type               string   `json:"type"`
	Summary            string   `json:"summary"`
	KeyTopics          []string `json:"key_topics"`
	DataClassification string   `json:"data_classification"`
}
