package ocr

import (
	"context"

	"github.com/sells-group/claims-cli/pkg/docai"
)

// DocumentAI extracts text through a Google Document AI processor.
type DocumentAI struct {
	client docai.Client
}

// NewDocumentAI creates a DocumentAI extractor.
func NewDocumentAI(client docai.Client) *DocumentAI {
	return &DocumentAI{client: client}
}

// Extract sends the document to the processor and returns its full text.
func (d *DocumentAI) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	doc, err := d.client.Process(ctx, content, mimeType)
	if err != nil {
		return "", &ExtractionError{Provider: "documentai", Err: err}
	}
	return doc.Text, nil
}
