package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"insights-service/internal/model"
)

// fakeWarehouse answers each measure/groupBy combination from a canned
// table and records the specs it saw.
type fakeWarehouse struct {
	mu      sync.Mutex
	results map[string]*model.ResultSet
	specs   []model.QuerySpec
	err     error
}

func specKey(spec model.QuerySpec) string {
	key := spec.Measure
	for _, dim := range spec.GroupBy {
		key += "/" + dim
	}
	return key
}

func (w *fakeWarehouse) Query(_ context.Context, spec model.QuerySpec) (*model.ResultSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.specs = append(w.specs, spec)
	if w.err != nil {
		return nil, w.err
	}
	if result, ok := w.results[specKey(spec)]; ok {
		return result, nil
	}
	return &model.ResultSet{}, nil
}

func (w *fakeWarehouse) HealthCheck(context.Context) error {
	return nil
}

type fakeInsightProvider struct {
	insights []model.Insight
	err      error
	gotFocus string
	gotData  *model.ResultSet
}

func (p *fakeInsightProvider) Generate(_ context.Context, focus string, data *model.ResultSet) ([]model.Insight, error) {
	p.gotFocus = focus
	p.gotData = data
	return p.insights, p.err
}

func TestSummaryAggregatesAllPanels(t *testing.T) {
	warehouse := &fakeWarehouse{results: map[string]*model.ResultSet{
		"responses": {
			Columns: []string{"responses"},
			Rows:    [][]interface{}{{uint64(1240)}},
		},
		"avg_score": {
			Columns: []string{"avg_score"},
			Rows:    [][]interface{}{{3.7}},
		},
		"avg_score/category": {
			Columns: []string{"category", "avg_score"},
			Rows: [][]interface{}{
				{"staff", 4.1},
				{"cleanliness", 3.2},
			},
		},
	}}

	service := NewService(warehouse, &fakeInsightProvider{}, zap.NewNop())

	summary, err := service.Summary(context.Background(), map[string]string{"region": "north"}, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int64(1240), summary.TotalResponses)
	assert.InDelta(t, 3.7, summary.AverageScore, 0.001)
	assert.Equal(t, map[string]float64{"staff": 4.1, "cleanliness": 3.2}, summary.ByCategory)
	assert.False(t, summary.GeneratedAt.IsZero())

	require.Len(t, warehouse.specs, 3)
	for _, spec := range warehouse.specs {
		assert.Equal(t, "north", spec.Filters["region"])
	}
}

func TestSummaryFailsAsAUnit(t *testing.T) {
	warehouse := &fakeWarehouse{err: errors.New("warehouse down")}
	service := NewService(warehouse, &fakeInsightProvider{}, zap.NewNop())

	_, err := service.Summary(context.Background(), nil, time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestQueryDelegates(t *testing.T) {
	want := &model.ResultSet{
		Columns: []string{"responses"},
		Rows:    [][]interface{}{{uint64(5)}},
	}
	warehouse := &fakeWarehouse{results: map[string]*model.ResultSet{"responses": want}}
	service := NewService(warehouse, &fakeInsightProvider{}, zap.NewNop())

	got, err := service.Query(context.Background(), model.QuerySpec{Measure: "responses"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateInsightsForwardsAggregates(t *testing.T) {
	data := &model.ResultSet{
		Columns: []string{"category", "avg_score"},
		Rows:    [][]interface{}{{"staff", 2.1}},
	}
	warehouse := &fakeWarehouse{results: map[string]*model.ResultSet{"avg_score/category": data}}
	provider := &fakeInsightProvider{insights: []model.Insight{
		{Category: "staff", Severity: "high", Text: "Staff satisfaction is trending down."},
	}}
	service := NewService(warehouse, provider, zap.NewNop())

	findings, err := service.GenerateInsights(context.Background(), "staffing", model.QuerySpec{
		Measure: "avg_score",
		GroupBy: []string{"category"},
	})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "staff", findings[0].Category)
	assert.Equal(t, "staffing", provider.gotFocus)
	assert.Equal(t, data, provider.gotData)
}

func TestGenerateInsightsSkipsProviderOnWarehouseError(t *testing.T) {
	warehouse := &fakeWarehouse{err: errors.New("warehouse down")}
	provider := &fakeInsightProvider{}
	service := NewService(warehouse, provider, zap.NewNop())

	_, err := service.GenerateInsights(context.Background(), "staffing", model.QuerySpec{Measure: "avg_score"})
	assert.Error(t, err)
	assert.Nil(t, provider.gotData)
}

func TestGenerateInsightsProviderError(t *testing.T) {
	warehouse := &fakeWarehouse{results: map[string]*model.ResultSet{}}
	provider := &fakeInsightProvider{err: ErrInsightsUnavailable}
	service := NewService(warehouse, provider, zap.NewNop())

	_, err := service.GenerateInsights(context.Background(), "", model.QuerySpec{Measure: "responses"})
	assert.ErrorIs(t, err, ErrInsightsUnavailable)
}
