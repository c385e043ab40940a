package storage

import "time"

// Ingestion states.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// StatusRecord is the ingestion state of one uploaded filename.
type StatusRecord struct {
	Filename  string
	Status    string // processing, completed or failed
	Progress  int    // 0..100
	FileID    string // set once completed
	Chunks    int    // number of points written, set once completed
	Error     string // set when failed
	UpdatedAt time.Time
}
