// Package layout maps event identifiers to the on-disk artifact trees.
package layout

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/model"
)

// AnalysisSuffix is appended to the event identifier to name the analysis file.
const AnalysisSuffix = "_analyza.txt"

// Layout holds the base directories of every artifact tree.
type Layout struct {
	EventsDir       string
	RawDir          string
	RedactedDir     string
	GeneralDir      string
	AnalysisDir     string
	SensitiveFolder string
	GeneralFolder   string
}

// EventRoot returns the source folder of an event under EventsDir.
func (l Layout) EventRoot(eventID string) string {
	return filepath.Join(l.EventsDir, eventID)
}

// InputDir returns the category subfolder holding an event's source PDFs.
func (l Layout) InputDir(eventRoot string, cat model.Category) string {
	if cat == model.CategorySensitive {
		return filepath.Join(eventRoot, l.SensitiveFolder)
	}
	return filepath.Join(eventRoot, l.GeneralFolder)
}

// RawEventDir returns the raw OCR snapshot folder for an event.
func (l Layout) RawEventDir(eventID string) string {
	return filepath.Join(l.RawDir, eventID)
}

// OutputDir returns the final per-document text folder for a category:
// redacted text for sensitive documents, plain text for general ones.
func (l Layout) OutputDir(eventID string, cat model.Category) string {
	if cat == model.CategorySensitive {
		return filepath.Join(l.RedactedDir, eventID)
	}
	return filepath.Join(l.GeneralDir, eventID)
}

// AnalysisPath returns the deterministic analysis result path for an event.
func (l Layout) AnalysisPath(eventID string) string {
	return filepath.Join(l.AnalysisDir, eventID+AnalysisSuffix)
}

// TextName converts a source file name to its per-document text name.
func TextName(sourceName string) string {
	base := filepath.Base(sourceName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// IsPDF reports whether name follows the PDF file convention.
func IsPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// ListFiles returns the sorted names of regular files in dir whose name
// satisfies match. A missing dir yields an empty list.
func ListFiles(dir string, match func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "layout: read dir %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// IsText reports whether name is a per-document text artifact.
func IsText(name string) bool {
	return strings.HasSuffix(name, ".txt")
}

// EventListing enumerates the artifacts currently on disk for one event.
type EventListing struct {
	EventID      string   `json:"event_id"`
	Raw          []string `json:"raw"`
	Redacted     []string `json:"redacted"`
	General      []string `json:"general"`
	SensitivePDF []string `json:"sensitive_pdfs"`
	GeneralPDF   []string `json:"general_pdfs"`
	Analysis     string   `json:"analysis,omitempty"`
}

// List returns the text artifacts and source PDFs of the event whose folder
// is named eventID.
func (l Layout) List(eventID string) (*EventListing, error) {
	return l.ListAt(l.EventRoot(eventID))
}

// ListAt is List for an event rooted at root. The output trees are looked up
// under the normalized event identifier, the PDFs under root itself.
func (l Layout) ListAt(root string) (*EventListing, error) {
	eventID := model.EventIDFromPath(root)
	out := &EventListing{EventID: eventID}
	var err error
	if out.Raw, err = ListFiles(l.RawEventDir(eventID), IsText); err != nil {
		return nil, err
	}
	if out.Redacted, err = ListFiles(l.OutputDir(eventID, model.CategorySensitive), IsText); err != nil {
		return nil, err
	}
	if out.General, err = ListFiles(l.OutputDir(eventID, model.CategoryGeneral), IsText); err != nil {
		return nil, err
	}
	if out.SensitivePDF, err = ListFiles(l.InputDir(root, model.CategorySensitive), IsPDF); err != nil {
		return nil, err
	}
	if out.GeneralPDF, err = ListFiles(l.InputDir(root, model.CategoryGeneral), IsPDF); err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(l.AnalysisPath(eventID)); statErr == nil {
		out.Analysis = l.AnalysisPath(eventID)
	}
	return out, nil
}

// Events returns the sorted names of event folders under EventsDir.
func (l Layout) Events() ([]string, error) {
	entries, err := os.ReadDir(l.EventsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "layout: read events dir %s", l.EventsDir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// WriteText writes text to path as UTF-8, creating parent directories.
func WriteText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "layout: create dir for %s", path)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return eris.Wrapf(err, "layout: write %s", path)
	}
	return nil
}
