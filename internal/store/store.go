// Package store persists the claim index: events, document texts, analyses
// and the prompt registry.
package store

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/sells-group/claims-cli/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrPromptActive is returned when deleting the active prompt template.
	ErrPromptActive = errors.New("store: prompt is active")
)

// Store defines the persistence interface for the claims pipeline.
type Store interface {
	// Events
	EnsureEvent(ctx context.Context, eventID string) (*model.Event, error)
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	// Documents. Every processing run appends rows; LatestDocuments returns
	// the newest row per filename and category.
	InsertDocument(ctx context.Context, doc *model.DocumentArtifact) error
	ListDocuments(ctx context.Context, eventID string) ([]model.DocumentArtifact, error)
	LatestDocuments(ctx context.Context, eventID string) ([]model.DocumentArtifact, error)

	// Analyses. SaveAnalysis writes the result and the optional prompt run
	// in one transaction.
	SaveAnalysis(ctx context.Context, res *model.AnalysisResult, run *model.PromptRun) error
	ListAnalyses(ctx context.Context, eventID string) ([]model.AnalysisResult, error)
	LatestAnalysis(ctx context.Context, eventID string) (*model.AnalysisResult, error)
	ListPromptRuns(ctx context.Context, eventID string) ([]model.PromptRun, error)

	// Prompts. CreatePrompt always inserts an inactive template and
	// UpdatePrompt never changes is_active; only ActivatePrompt does.
	CreatePrompt(ctx context.Context, p *model.PromptTemplate) error
	UpdatePrompt(ctx context.Context, p *model.PromptTemplate) error
	GetPrompt(ctx context.Context, id int64) (*model.PromptTemplate, error)
	GetPromptByName(ctx context.Context, name string) (*model.PromptTemplate, error)
	ListPrompts(ctx context.Context) ([]model.PromptTemplate, error)
	ActivePrompt(ctx context.Context) (*model.PromptTemplate, error)
	ActivatePrompt(ctx context.Context, id int64) error
	DeletePrompt(ctx context.Context, id int64) error

	Counts(ctx context.Context) (*model.Counts, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// sortByCategory orders documents sensitive first, then by filename.
func sortByCategory(docs []model.DocumentArtifact) {
	rank := func(c model.Category) int {
		if c == model.CategorySensitive {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(docs, func(a, b model.DocumentArtifact) int {
		return cmp.Or(cmp.Compare(rank(a.Category), rank(b.Category)), cmp.Compare(a.Filename, b.Filename))
	})
}
