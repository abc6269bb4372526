package artifact

import (
	"context"

	"github.com/sells-group/claims-cli/internal/archive"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
)

// TextPutter uploads a text object. archive.Mirror implements it.
type TextPutter interface {
	PutText(ctx context.Context, key, text string) error
}

// Archive mirrors text artifacts to object storage under
// <event>/<kind>/<name>.
type Archive struct {
	Putter TextPutter
}

// NewArchive creates an Archive store.
func NewArchive(p TextPutter) *Archive {
	return &Archive{Putter: p}
}

func (a *Archive) SaveEvent(context.Context, string) error { return nil }

func (a *Archive) SaveSnapshot(ctx context.Context, eventID, filename, rawText string) error {
	return a.Putter.PutText(ctx, archive.Key(eventID, archive.KindRaw, layout.TextName(filename)), rawText)
}

func (a *Archive) SaveDocument(ctx context.Context, doc model.DocumentArtifact) error {
	kind, text := archive.KindGeneral, doc.OCRText
	if doc.Category == model.CategorySensitive && doc.AnonymizedText != nil {
		kind, text = archive.KindRedacted, *doc.AnonymizedText
	}
	return a.Putter.PutText(ctx, archive.Key(doc.EventID, kind, layout.TextName(doc.Filename)), text)
}

func (a *Archive) SaveAnalysis(ctx context.Context, res model.AnalysisResult, _ *model.PromptRun) error {
	return a.Putter.PutText(ctx, archive.Key(res.EventID, archive.KindAnalysis, res.EventID+layout.AnalysisSuffix), res.SummaryText)
}
