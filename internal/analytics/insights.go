package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"insights-service/internal/config"
	"insights-service/internal/model"
)

var (
	ErrInsightsUnavailable = errors.New("insights provider unavailable")
	ErrInsightsRejected    = errors.New("insights provider rejected the request")
)

// InsightProvider turns aggregated result sets into narrative findings.
// The model behind it is external; this service only ships aggregates
// out and findings back, never raw survey responses.
type InsightProvider interface {
	Generate(ctx context.Context, focus string, data *model.ResultSet) ([]model.Insight, error)
}

// HTTPInsightProvider calls the insight microservice over JSON/HTTP.
type HTTPInsightProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPInsightProvider(cfg config.ProviderConfig) *HTTPInsightProvider {
	return &HTTPInsightProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type insightRequest struct {
	Focus   string          `json:"focus,omitempty"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

type insightResponse struct {
	Insights []model.Insight `json:"insights"`
}

func (p *HTTPInsightProvider) Generate(ctx context.Context, focus string, data *model.ResultSet) ([]model.Insight, error) {
	payload := insightRequest{
		Focus:   focus,
		Columns: data.Columns,
		Rows:    data.Rows,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal insight request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/insights/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build insight request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsightsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrInsightsRejected, resp.StatusCode)
	}

	var parsed insightResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode insight response: %w", err)
	}

	return parsed.Insights, nil
}
