package dlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/resilience"
)

const tmpl = "projects/claims-prod/locations/europe-west3/deidentifyTemplates/pii"

func TestDeidentify_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/projects/claims-prod/locations/europe-west3/content:deidentify", r.URL.Path)

		var body deidentifyBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, tmpl, body.DeidentifyTemplateName)
		assert.Equal(t, "projects/claims-prod/inspectTemplates/sk", body.InspectTemplateName)
		assert.Equal(t, "Ján Novák, RČ 800101/1234", body.Item.Value)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"item": map[string]any{"value": "[PERSON_NAME], RČ [NATIONAL_ID]"},
		})
	}))
	defer srv.Close()

	c := NewClient("claims-prod", "", WithBaseURL(srv.URL))
	out, err := c.Deidentify(context.Background(), DeidentifyRequest{
		Text:               "Ján Novák, RČ 800101/1234",
		DeidentifyTemplate: tmpl,
		InspectTemplate:    "projects/claims-prod/inspectTemplates/sk",
	})
	require.NoError(t, err)
	assert.Equal(t, "[PERSON_NAME], RČ [NATIONAL_ID]", out)
}

func TestDeidentify_OmitsEmptyInspectTemplate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, ok := raw["inspectTemplateName"]
		assert.False(t, ok)
		json.NewEncoder(w).Encode(map[string]any{"item": map[string]any{"value": "ok"}}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("p", "europe-west3", WithBaseURL(srv.URL))
	out, err := c.Deidentify(context.Background(), DeidentifyRequest{Text: "x", DeidentifyTemplate: tmpl})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestDeidentify_RequiresTemplate(t *testing.T) {
	c := NewClient("p", "")
	_, err := c.Deidentify(context.Background(), DeidentifyRequest{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template is required")
}

func TestDeidentify_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("p", "", WithBaseURL(srv.URL))
	_, err := c.Deidentify(context.Background(), DeidentifyRequest{Text: "x", DeidentifyTemplate: tmpl})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestDeidentify_BadTemplate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"template not found"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("p", "", WithBaseURL(srv.URL))
	_, err := c.Deidentify(context.Background(), DeidentifyRequest{Text: "x", DeidentifyTemplate: tmpl})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "template not found")
}

func TestParent(t *testing.T) {
	c := NewClient("p1", "").(*httpClient)
	assert.Equal(t, "projects/p1/locations/europe-west3", c.Parent())
	assert.Equal(t, defaultBaseURL, c.baseURL)
}
