package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-service/internal/config"
	"insights-service/internal/model"
)

func TestHTTPInsightProviderGenerate(t *testing.T) {
	var gotRequest insightRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/insights/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		_ = json.NewEncoder(w).Encode(insightResponse{Insights: []model.Insight{
			{Category: "cleanliness", Severity: "medium", Text: "Scores dipped in February."},
		}})
	}))
	defer server.Close()

	provider := NewHTTPInsightProvider(config.ProviderConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	})

	data := &model.ResultSet{
		Columns: []string{"category", "avg_score"},
		Rows:    [][]interface{}{{"cleanliness", 3.1}},
	}
	findings, err := provider.Generate(context.Background(), "facilities", data)
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "cleanliness", findings[0].Category)
	assert.Equal(t, "facilities", gotRequest.Focus)
	assert.Equal(t, data.Columns, gotRequest.Columns)
}

func TestHTTPInsightProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewHTTPInsightProvider(config.ProviderConfig{BaseURL: server.URL, Timeout: time.Second})
	_, err := provider.Generate(context.Background(), "", &model.ResultSet{})
	assert.ErrorIs(t, err, ErrInsightsRejected)
}

func TestHTTPInsightProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	provider := NewHTTPInsightProvider(config.ProviderConfig{BaseURL: server.URL, Timeout: time.Second})
	_, err := provider.Generate(context.Background(), "", &model.ResultSet{})
	assert.ErrorIs(t, err, ErrInsightsUnavailable)
}
