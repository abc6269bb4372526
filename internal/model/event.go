package model

import (
	"path/filepath"
	"strings"
	"time"
)

// EventState represents the lifecycle stage of one event's processing.
type EventState string

const (
	EventStateCreated           EventState = "created"
	EventStateSweepingSensitive EventState = "sweeping_sensitive"
	EventStateSweepingGeneral   EventState = "sweeping_general"
	EventStateAggregated        EventState = "aggregated"
	EventStateAnalyzing         EventState = "analyzing"
	EventStateComplete          EventState = "complete"
)

// Category identifies which document group a file belongs to.
type Category string

const (
	CategorySensitive Category = "sensitive"
	CategoryGeneral   Category = "general"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategorySensitive || c == CategoryGeneral
}

// Event is one insurance claim, identified by its folder name.
type Event struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EventIDFromPath derives the event identifier from the base name of an
// event folder, trimmed of surrounding whitespace.
func EventIDFromPath(path string) string {
	return strings.TrimSpace(filepath.Base(filepath.Clean(path)))
}

// DocumentArtifact is the extracted (and for sensitive documents, redacted)
// text of one processed file.
type DocumentArtifact struct {
	ID             int64     `json:"id"`
	EventID        string    `json:"event_id"`
	Filename       string    `json:"filename"`
	Category       Category  `json:"category"`
	OCRText        string    `json:"ocr_text"`
	AnonymizedText *string   `json:"anonymized_text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnalysisResult is one generated summary for an event.
type AnalysisResult struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id"`
	Model       string    `json:"model"`
	SummaryText string    `json:"summary_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Counts summarizes the size of the persisted index.
type Counts struct {
	Events     int `json:"events"`
	Documents  int `json:"documents"`
	Analyses   int `json:"analyses"`
	Prompts    int `json:"prompts"`
	PromptRuns int `json:"prompt_runs"`
}
