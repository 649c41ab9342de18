package domain

import "time"

// Ingest event statuses published to the events topic.
const (
	StatusIngested = "ingested"
	StatusSkipped  = "skipped"
)

// IngestEvent announces the outcome of processing one daily archive. Emitted
// per archive when event publishing is enabled, so downstream services can
// react as days land instead of polling the consolidated store.
type IngestEvent struct {
	Variable   string    `json:"variable"`
	Date       time.Time `json:"date"`
	Source     string    `json:"source"`
	Status     string    `json:"status"` // StatusIngested or StatusSkipped
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RunSummary describes a completed pipeline run.
type RunSummary struct {
	Variable        string    `json:"variable"`
	Years           []int     `json:"years"`
	DaysProcessed   int       `json:"days_processed"`
	SkippedSources  []string  `json:"skipped_sources,omitempty"`
	Output          string    `json:"output"`
	DurationSeconds float64   `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}
