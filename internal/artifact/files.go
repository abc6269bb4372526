package artifact

import (
	"context"
	"path/filepath"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
)

// Files writes artifacts into the filesystem trees described by a Layout.
// Per-document output text is written by the sweep itself, so SaveDocument
// has nothing left to do here.
type Files struct {
	Layout layout.Layout
}

// NewFiles creates a Files store.
func NewFiles(l layout.Layout) *Files {
	return &Files{Layout: l}
}

func (f *Files) SaveEvent(context.Context, string) error { return nil }

func (f *Files) SaveSnapshot(_ context.Context, eventID, filename, rawText string) error {
	return layout.WriteText(filepath.Join(f.Layout.RawEventDir(eventID), layout.TextName(filename)), rawText)
}

func (f *Files) SaveDocument(context.Context, model.DocumentArtifact) error { return nil }

func (f *Files) SaveAnalysis(_ context.Context, res model.AnalysisResult, _ *model.PromptRun) error {
	return layout.WriteText(f.Layout.AnalysisPath(res.EventID), res.SummaryText)
}
