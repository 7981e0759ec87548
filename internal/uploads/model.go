package uploads

import (
	"time"

	"spinevision-backend/internal/engine"
)

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Upload represents one submitted X-ray image owned by a user.
type Upload struct {
	ID         string
	UserID     string
	FileName   string
	StorageKey string
	FileType   string
	SizeBytes  int64
	Status     string
	CreatedAt  time.Time
}

// Result holds the analysis outcome for a completed upload. A result
// row exists only for uploads in status done.
type Result struct {
	ID              string
	UploadID        string
	ModelVersion    string
	Classification  string
	ConfidenceScore float64
	Findings        []engine.Finding
	HeatmapKey      string
	ReportKey       string
	ProcessedAt     time.Time
}

// Stats aggregates upload counts for the history and admin endpoints.
type Stats struct {
	Total    int `json:"totalUploads"`
	Done     int `json:"completed"`
	Normal   int `json:"normal"`
	Abnormal int `json:"abnormal"`
	Pending  int `json:"pending"`
	Failed   int `json:"failed"`
}
