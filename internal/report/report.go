// Package report exports the claim index to an XLSX workbook for audit.
package report

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/store"
)

// maxCellLen is the longest text a spreadsheet cell accepts.
const maxCellLen = 32767

// Sheet names, in workbook order.
const (
	SheetEvents     = "Events"
	SheetDocuments  = "Documents"
	SheetAnalyses   = "Analyses"
	SheetPrompts    = "Prompts"
	SheetPromptRuns = "PromptRuns"
)

// Snapshot is everything written to the workbook.
type Snapshot struct {
	Events     []model.Event
	Documents  []model.DocumentArtifact
	Analyses   []model.AnalysisResult
	Prompts    []model.PromptTemplate
	PromptRuns []model.PromptRun
}

// Options selects what Collect reads.
type Options struct {
	// EventID limits the export to one event. Prompts are always exported.
	EventID string

	// AllDocuments exports every stored document row instead of only the
	// latest row per filename.
	AllDocuments bool
}

// Collect reads a Snapshot from st.
func Collect(ctx context.Context, st store.Store, opts Options) (*Snapshot, error) {
	snap := &Snapshot{}
	if opts.EventID != "" {
		ev, err := st.GetEvent(ctx, opts.EventID)
		if err != nil {
			return nil, eris.Wrapf(err, "report: get event %s", opts.EventID)
		}
		snap.Events = []model.Event{*ev}
	} else {
		evs, err := st.ListEvents(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "report: list events")
		}
		snap.Events = evs
	}

	for _, ev := range snap.Events {
		var docs []model.DocumentArtifact
		var err error
		if opts.AllDocuments {
			docs, err = st.ListDocuments(ctx, ev.EventID)
		} else {
			docs, err = st.LatestDocuments(ctx, ev.EventID)
		}
		if err != nil {
			return nil, eris.Wrapf(err, "report: documents of %s", ev.EventID)
		}
		snap.Documents = append(snap.Documents, docs...)
	}

	var err error
	if snap.Analyses, err = st.ListAnalyses(ctx, opts.EventID); err != nil {
		return nil, eris.Wrap(err, "report: list analyses")
	}
	if snap.PromptRuns, err = st.ListPromptRuns(ctx, opts.EventID); err != nil {
		return nil, eris.Wrap(err, "report: list prompt runs")
	}
	if snap.Prompts, err = st.ListPrompts(ctx); err != nil {
		return nil, eris.Wrap(err, "report: list prompts")
	}
	return snap, nil
}

// WriteXLSX writes snap as a workbook with one sheet per table.
func WriteXLSX(w io.Writer, snap *Snapshot) error {
	f := xlsx.NewFile()

	sheet, err := addSheet(f, SheetEvents, "ID", "Event", "Created")
	if err != nil {
		return err
	}
	for _, ev := range snap.Events {
		row := sheet.AddRow()
		intCell(row, ev.ID)
		textCell(row, ev.EventID)
		timeCell(row, ev.CreatedAt)
	}

	sheet, err = addSheet(f, SheetDocuments, "ID", "Event", "Filename", "Category", "OCR Text", "Anonymized Text", "Created")
	if err != nil {
		return err
	}
	for _, d := range snap.Documents {
		row := sheet.AddRow()
		intCell(row, d.ID)
		textCell(row, d.EventID)
		textCell(row, d.Filename)
		textCell(row, string(d.Category))
		textCell(row, d.OCRText)
		if d.AnonymizedText != nil {
			textCell(row, *d.AnonymizedText)
		} else {
			textCell(row, "")
		}
		timeCell(row, d.CreatedAt)
	}

	sheet, err = addSheet(f, SheetAnalyses, "ID", "Event", "Run", "Model", "Summary", "Created")
	if err != nil {
		return err
	}
	for _, a := range snap.Analyses {
		row := sheet.AddRow()
		intCell(row, a.ID)
		textCell(row, a.EventID)
		textCell(row, a.RunID)
		textCell(row, a.Model)
		textCell(row, a.SummaryText)
		timeCell(row, a.CreatedAt)
	}

	sheet, err = addSheet(f, SheetPrompts, "ID", "Name", "Version", "Model", "Active", "Content", "Updated")
	if err != nil {
		return err
	}
	for _, p := range snap.Prompts {
		row := sheet.AddRow()
		intCell(row, p.ID)
		textCell(row, p.Name)
		textCell(row, p.Version)
		textCell(row, p.Model)
		textCell(row, strconv.FormatBool(p.IsActive))
		textCell(row, p.Content)
		timeCell(row, p.UpdatedAt)
	}

	sheet, err = addSheet(f, SheetPromptRuns, "ID", "Prompt", "Event", "Run", "Model", "Tokens In", "Tokens Out", "Created")
	if err != nil {
		return err
	}
	for _, r := range snap.PromptRuns {
		row := sheet.AddRow()
		intCell(row, r.ID)
		intCell(row, r.PromptID)
		textCell(row, r.EventID)
		textCell(row, r.RunID)
		textCell(row, r.Model)
		optIntCell(row, r.TokensIn)
		optIntCell(row, r.TokensOut)
		timeCell(row, r.CreatedAt)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

func addSheet(f *xlsx.File, name string, headers ...string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range headers {
		row.AddCell().SetString(h)
	}
	return sheet, nil
}

func textCell(row *xlsx.Row, s string) {
	if len(s) > maxCellLen {
		s = truncate(s, maxCellLen)
	}
	row.AddCell().SetString(s)
}

func intCell(row *xlsx.Row, n int64) {
	row.AddCell().SetInt64(n)
}

func optIntCell(row *xlsx.Row, n *int64) {
	if n == nil {
		row.AddCell().SetString("")
		return
	}
	intCell(row, *n)
}

func timeCell(row *xlsx.Row, t time.Time) {
	if t.IsZero() {
		row.AddCell().SetString("")
		return
	}
	row.AddCell().SetString(t.UTC().Format(time.RFC3339))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
