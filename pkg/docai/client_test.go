package docai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/resilience"
)

func TestProcess_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/claims-prod/locations/eu/processors/proc-1:process", r.URL.Path)

		var req processRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.RawDocument.Content)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 fake", string(raw))
		assert.Equal(t, "application/pdf", req.RawDocument.MimeType)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"document": map[string]any{
				"text":  "Poistná udalosť č. 15\nŠkoda na vozidle",
				"pages": []map[string]any{{"pageNumber": 1}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("claims-prod", "", "proc-1", WithBaseURL(srv.URL))
	doc, err := c.Process(context.Background(), []byte("%PDF-1.4 fake"), "")
	require.NoError(t, err)
	assert.Equal(t, "Poistná udalosť č. 15\nŠkoda na vozidle", doc.Text)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 1, doc.Pages[0].PageNumber)
}

func TestProcess_TransientStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"backend unavailable"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("p", "eu", "proc", WithBaseURL(srv.URL))
	_, err := c.Process(context.Background(), []byte("x"), "application/pdf")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "docai: status 503")
}

func TestProcess_PermanentStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unsupported mime type"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("p", "eu", "proc", WithBaseURL(srv.URL))
	_, err := c.Process(context.Background(), []byte("x"), "image/tiff")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "unsupported mime type")
}

func TestProcess_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("p", "eu", "proc", WithBaseURL(srv.URL))
	_, err := c.Process(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docai: unmarshal response")
}

func TestNewClient_RegionalEndpoint(t *testing.T) {
	c := NewClient("p", "us", "proc").(*httpClient)
	assert.Equal(t, "https://us-documentai.googleapis.com", c.baseURL)
	assert.Equal(t, "projects/p/locations/us/processors/proc", c.ProcessorName())
}
