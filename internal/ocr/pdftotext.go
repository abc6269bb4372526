package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the poppler pdftotext CLI tool.
// It only reads embedded text layers; scanned pages come back empty.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Extract writes the PDF to a temp file, runs pdftotext -layout on it and
// returns stdout. mimeType is ignored.
func (p *PdfToText) Extract(ctx context.Context, content []byte, _ string) (string, error) {
	tmp, err := os.CreateTemp("", "claims-ocr-*.pdf")
	if err != nil {
		return "", &ExtractionError{Provider: "local", Err: eris.Wrap(err, "create temp file")}
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(content); err != nil {
		tmp.Close() //nolint:errcheck
		return "", &ExtractionError{Provider: "local", Err: eris.Wrap(err, "write temp file")}
	}
	if err := tmp.Close(); err != nil {
		return "", &ExtractionError{Provider: "local", Err: eris.Wrap(err, "close temp file")}
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &ExtractionError{Provider: "local", Err: eris.Wrapf(err, "pdftotext: %s", stderr.String())}
	}
	return stdout.String(), nil
}
