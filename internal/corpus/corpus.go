// Package corpus concatenates the per-document texts of an event into the
// single corpus sent for analysis.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
)

// ErrDocumentNotFound is returned by Document when neither tree holds the file.
var ErrDocumentNotFound = eris.New("document not found")

// Document is one text artifact that takes part in the corpus.
type Document struct {
	Category model.Category `json:"category"`
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Text     string         `json:"text"`
}

// Aggregator reads the redacted and general output trees of a Layout.
type Aggregator struct {
	layout layout.Layout
}

// New creates an Aggregator.
func New(l layout.Layout) *Aggregator {
	return &Aggregator{layout: l}
}

// Documents returns the redacted documents followed by the general ones,
// each group in lexicographic filename order. Missing folders are empty.
func (a *Aggregator) Documents(eventID string) ([]Document, error) {
	var docs []Document
	for _, cat := range []model.Category{model.CategorySensitive, model.CategoryGeneral} {
		dir := a.layout.OutputDir(eventID, cat)
		names, err := layout.ListFiles(dir, layout.IsText)
		if err != nil {
			return nil, eris.Wrapf(err, "corpus: list %s documents", cat)
		}
		for _, name := range names {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, eris.Wrapf(err, "corpus: read %s", path)
			}
			docs = append(docs, Document{Category: cat, Name: name, Path: path, Text: string(data)})
		}
	}
	return docs, nil
}

// Aggregate returns the delimited corpus of an event, or "" when it has no
// documents.
func (a *Aggregator) Aggregate(eventID string) (string, error) {
	docs, err := a.Documents(eventID)
	if err != nil {
		return "", err
	}
	return Format(docs), nil
}

// Document reads one text artifact by name. The redacted tree is preferred
// over the general one.
func (a *Aggregator) Document(eventID, filename string) (*Document, error) {
	name := filepath.Base(filename)
	if name != filename || name == "." || name == ".." {
		return nil, eris.Errorf("corpus: invalid document name %q", filename)
	}
	name = layout.TextName(name)
	for _, cat := range []model.Category{model.CategorySensitive, model.CategoryGeneral} {
		path := filepath.Join(a.layout.OutputDir(eventID, cat), name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "corpus: read %s", path)
		}
		return &Document{Category: cat, Name: name, Path: path, Text: string(data)}, nil
	}
	return nil, eris.Wrapf(ErrDocumentNotFound, "corpus: %s/%s", eventID, name)
}

// Format joins documents into delimited blocks separated by a blank line.
func Format(docs []Document) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, fmt.Sprintf("=== BEGIN DOCUMENT [%s] %s ===\n%s\n=== END DOCUMENT [%s] %s ===",
			d.Category, d.Name, d.Text, d.Category, d.Name))
	}
	return strings.Join(blocks, "\n\n")
}
