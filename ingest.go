package ragkb

import "context"

// IngestResult describes the chunks written for one document.
type IngestResult struct {
	DocumentID    string `json:"documentId"`
	ChunksCreated int    `json:"chunksCreated"`

	// ChunksRemoved counts chunks of an earlier version past the new total.
	ChunksRemoved int `json:"chunksRemoved"`
}

// Ingester chunks, enriches, embeds and stores a scraped document.
type Ingester interface {
	Ingest(ctx context.Context, url string, sourceType SourceType, res *ScrapeResult) (*IngestResult, error)
}

// BatchReport counts the outcomes of one queue batch.
type BatchReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Add accumulates another report into r.
func (r *BatchReport) Add(o BatchReport) {
	r.Processed += o.Processed
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
}
