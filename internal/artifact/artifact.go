// Package artifact persists pipeline outputs to the filesystem tree, the
// database index and the optional object-storage mirror.
//
// The filesystem is authoritative. Tiered composes one primary Store with
// any number of secondaries: a primary failure is returned to the caller,
// a secondary failure is reported as a PersistenceError and swallowed.
package artifact

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/progress"
)

// Store persists the artifacts of one event.
type Store interface {
	// SaveEvent registers the event.
	SaveEvent(ctx context.Context, eventID string) error

	// SaveSnapshot stores the raw extracted text of a sensitive document
	// before redaction.
	SaveSnapshot(ctx context.Context, eventID, filename, rawText string) error

	// SaveDocument records a processed document.
	SaveDocument(ctx context.Context, doc model.DocumentArtifact) error

	// SaveAnalysis stores an analysis result and, when run is non-nil, the
	// prompt run that produced it.
	SaveAnalysis(ctx context.Context, res model.AnalysisResult, run *model.PromptRun) error
}

// PersistenceError reports a failed write to a secondary store.
type PersistenceError struct {
	Op      string
	EventID string
	File    string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("persistence failed (%s %s/%s): %v", e.Op, e.EventID, e.File, e.Err)
	}
	return fmt.Sprintf("persistence failed (%s %s): %v", e.Op, e.EventID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Tiered writes to Primary first, then to every secondary.
type Tiered struct {
	Primary     Store
	Secondaries []Store
	Sink        progress.Sink
}

// NewTiered creates a Tiered store. A nil sink discards reports.
func NewTiered(sink progress.Sink, primary Store, secondaries ...Store) *Tiered {
	if sink == nil {
		sink = progress.Discard
	}
	return &Tiered{Primary: primary, Secondaries: secondaries, Sink: sink}
}

func (t *Tiered) SaveEvent(ctx context.Context, eventID string) error {
	return t.each("save event", eventID, "", func(s Store) error {
		return s.SaveEvent(ctx, eventID)
	})
}

func (t *Tiered) SaveSnapshot(ctx context.Context, eventID, filename, rawText string) error {
	return t.each("save snapshot", eventID, filename, func(s Store) error {
		return s.SaveSnapshot(ctx, eventID, filename, rawText)
	})
}

func (t *Tiered) SaveDocument(ctx context.Context, doc model.DocumentArtifact) error {
	return t.each("save document", doc.EventID, doc.Filename, func(s Store) error {
		return s.SaveDocument(ctx, doc)
	})
}

func (t *Tiered) SaveAnalysis(ctx context.Context, res model.AnalysisResult, run *model.PromptRun) error {
	return t.each("save analysis", res.EventID, "", func(s Store) error {
		return s.SaveAnalysis(ctx, res, run)
	})
}

func (t *Tiered) each(op, eventID, file string, fn func(Store) error) error {
	if t.Primary != nil {
		if err := fn(t.Primary); err != nil {
			return err
		}
	}
	for _, s := range t.Secondaries {
		if err := fn(s); err != nil {
			perr := &PersistenceError{Op: op, EventID: eventID, File: file, Err: err}
			zap.L().Warn("artifact: secondary write failed",
				zap.String("op", op),
				zap.String("event_id", eventID),
				zap.String("file", file),
				zap.Error(err),
			)
			t.Sink.Record(progress.Error(eventID, file, perr))
		}
	}
	return nil
}
