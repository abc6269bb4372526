package pipeline

import (
	"context"

	"github.com/sells-group/claims-cli/internal/analysis"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/progress"
)

// Analyzer analyzes a processed event.
type Analyzer interface {
	AnalyzeEvent(ctx context.Context, eventID string) (*analysis.Outcome, error)
}

// Runner processes an event and then analyzes it.
type Runner struct {
	processor *Processor
	analyzer  Analyzer
	sink      progress.Sink
}

// NewRunner creates a Runner. A nil sink discards progress.
func NewRunner(p *Processor, a Analyzer, sink progress.Sink) *Runner {
	if sink == nil {
		sink = progress.Discard
	}
	return &Runner{processor: p, analyzer: a, sink: sink}
}

// Run processes the event at eventRoot and analyzes the result. The report
// is returned even when analysis fails.
func (r *Runner) Run(ctx context.Context, eventRoot string) (*Report, error) {
	report, err := r.processor.ProcessEvent(ctx, eventRoot)
	if err != nil {
		return report, err
	}

	report.State = model.EventStateAnalyzing
	out, err := r.analyzer.AnalyzeEvent(ctx, report.EventID)
	if err != nil {
		return report, err
	}
	report.Analysis = out
	report.State = model.EventStateComplete
	r.sink.Record(progress.Info(report.EventID, "", "event %s complete", report.EventID))
	return report, nil
}
