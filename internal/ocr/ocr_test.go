package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/pkg/docai"
)

// mockDocAI implements docai.Client for testing.
type mockDocAI struct {
	mock.Mock
}

func (m *mockDocAI) Process(ctx context.Context, content []byte, mimeType string) (*docai.Document, error) {
	args := m.Called(ctx, content, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docai.Document), args.Error(1)
}

func TestNewExtractor_DocumentAIDefault(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{}, &mockDocAI{})
	require.NoError(t, err)
	n, ok := ext.(*normalized)
	require.True(t, ok)
	assert.IsType(t, &DocumentAI{}, n.next)
	assert.Nil(t, n.limiter)
}

func TestNewExtractor_DocumentAIRequiresClient(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "documentai"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a Document AI client")
}

func TestNewExtractor_Local(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext", RequestsPerSecond: 2}, nil)
	require.NoError(t, err)
	n := ext.(*normalized)
	assert.IsType(t, &PdfToText{}, n.next)
	assert.NotNil(t, n.limiter)
}

func TestNewExtractor_MistralMissingKey(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "mistral"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral provider requires mistral_api_key")
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "tesseract"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "tesseract"`)
}

func TestDocumentAI_Extract(t *testing.T) {
	m := &mockDocAI{}
	m.On("Process", mock.Anything, []byte("pdf"), "application/pdf").
		Return(&docai.Document{Text: "Protokol o škode"}, nil)

	text, err := NewDocumentAI(m).Extract(context.Background(), []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "Protokol o škode", text)
	m.AssertExpectations(t)
}

func TestDocumentAI_ExtractWrapsError(t *testing.T) {
	m := &mockDocAI{}
	cause := errors.New("docai: status 500")
	m.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(nil, cause)

	_, err := NewDocumentAI(m).Extract(context.Background(), []byte("pdf"), "")
	require.Error(t, err)

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "documentai", extErr.Provider)
	assert.ErrorIs(t, err, cause)
}

func TestNormalized_ComposesToNFC(t *testing.T) {
	m := &mockDocAI{}
	// "s" followed by a combining caron decomposes "š".
	m.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Return(&docai.Document{Text: "s\u030ckoda"}, nil)

	ext, err := NewExtractor(config.OCRConfig{Provider: "documentai"}, m)
	require.NoError(t, err)

	text, err := ext.Extract(context.Background(), []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "\u0161koda", text)
}

func TestNormalized_LimiterHonorsContext(t *testing.T) {
	m := &mockDocAI{}
	ext, err := NewExtractor(config.OCRConfig{Provider: "documentai", RequestsPerSecond: 0.001}, m)
	require.NoError(t, err)

	m.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(&docai.Document{Text: "a"}, nil).Once()
	_, err = ext.Extract(context.Background(), []byte("pdf"), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ext.Extract(ctx, []byte("pdf"), "")
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	m.AssertNumberOfCalls(t, "Process", 1)
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_MissingBinary(t *testing.T) {
	p := NewPdfToText(filepath.Join(t.TempDir(), "no-such-pdftotext"))
	_, err := p.Extract(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	require.Error(t, err)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "local", extErr.Provider)
}

func TestPdfToText_FakeBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "pdftotext")
	// $4 is the temp PDF path after "-layout -enc UTF-8".
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncase \"$4\" in *.pdf) echo extracted;; esac\n"), 0o755))

	p := NewPdfToText(script)
	text, err := p.Extract(context.Background(), []byte("%PDF-1.4"), "")
	require.NoError(t, err)
	assert.Equal(t, "extracted\n", text)
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
}

func TestMistralOCR_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"pages": []map[string]any{
				{"index": 0, "markdown": "Page one"},
				{"index": 1, "markdown": "Page two"},
			},
		})
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	text, err := m.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)
	assert.Equal(t, "Page one\n\nPage two", text)
}

func TestMistralOCR_ExtractError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("bad", "")
	m.endpoint = srv.URL

	_, err := m.Extract(context.Background(), []byte("%PDF"), "")
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Contains(t, err.Error(), "status 401")
}
