package artifact

import (
	"context"

	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/store"
)

// Index records artifacts as rows in the database.
type Index struct {
	Store store.Store
}

// NewIndex creates an Index over st.
func NewIndex(st store.Store) *Index {
	return &Index{Store: st}
}

func (i *Index) SaveEvent(ctx context.Context, eventID string) error {
	_, err := i.Store.EnsureEvent(ctx, eventID)
	return err
}

func (i *Index) SaveSnapshot(context.Context, string, string, string) error { return nil }

func (i *Index) SaveDocument(ctx context.Context, doc model.DocumentArtifact) error {
	return i.Store.InsertDocument(ctx, &doc)
}

func (i *Index) SaveAnalysis(ctx context.Context, res model.AnalysisResult, run *model.PromptRun) error {
	return i.Store.SaveAnalysis(ctx, &res, run)
}
