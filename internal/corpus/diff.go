package corpus

import (
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
)

// Segment is one changed run of lines between raw and redacted text.
type Segment struct {
	Op       string   `json:"op"`
	Raw      []string `json:"raw,omitempty"`
	Redacted []string `json:"redacted,omitempty"`
}

// Comparison is the line diff of one sensitive document.
type Comparison struct {
	Filename string    `json:"filename"`
	Changes  int       `json:"changes"`
	Segments []Segment `json:"segments"`
}

// Diff returns the differing line segments between raw and redacted text.
func Diff(raw, redacted string) []Segment {
	a := difflib.SplitLines(raw)
	b := difflib.SplitLines(redacted)
	m := difflib.NewMatcher(a, b)

	var out []Segment
	for _, op := range m.GetOpCodes() {
		var name string
		switch op.Tag {
		case 'r':
			name = "replace"
		case 'd':
			name = "delete"
		case 'i':
			name = "insert"
		default:
			continue
		}
		out = append(out, Segment{Op: name, Raw: a[op.I1:op.I2], Redacted: b[op.J1:op.J2]})
	}
	return out
}

// Compare diffs the raw snapshot of a sensitive document against its
// redacted text.
func (a *Aggregator) Compare(eventID, filename string) (*Comparison, error) {
	name := layout.TextName(filepath.Base(filename))
	raw, err := os.ReadFile(filepath.Join(a.layout.RawEventDir(eventID), name))
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(ErrDocumentNotFound, "corpus: raw snapshot %s/%s", eventID, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read raw snapshot %s", name)
	}
	redacted, err := os.ReadFile(filepath.Join(a.layout.OutputDir(eventID, model.CategorySensitive), name))
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(ErrDocumentNotFound, "corpus: redacted text %s/%s", eventID, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read redacted text %s", name)
	}

	segs := Diff(string(raw), string(redacted))
	return &Comparison{Filename: name, Changes: len(segs), Segments: segs}, nil
}
