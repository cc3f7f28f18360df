package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"insights-service/internal/model"
	"insights-service/internal/util"
)

// Service composes the warehouse and the insight provider behind the
// analytics API.
type Service struct {
	warehouse Warehouse
	insights  InsightProvider
	logger    *zap.Logger
}

func NewService(warehouse Warehouse, insights InsightProvider, logger *zap.Logger) *Service {
	return &Service{
		warehouse: warehouse,
		insights:  insights,
		logger:    logger,
	}
}

// Query validates and runs a single structured query.
func (s *Service) Query(ctx context.Context, spec model.QuerySpec) (*model.ResultSet, error) {
	result, err := s.warehouse.Query(ctx, spec)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Warehouse query served",
		util.String("measure", spec.Measure),
		util.Int("rows", len(result.Rows)),
	)
	return result, nil
}

// Summary fans the three headline aggregates out concurrently and
// fails as a unit: a dashboard with a missing panel is worse than a
// retryable error.
func (s *Service) Summary(ctx context.Context, filters map[string]string, from, to time.Time) (*model.Summary, error) {
	summary := &model.Summary{
		ByCategory:  make(map[string]float64),
		GeneratedAt: time.Now().UTC(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := s.warehouse.Query(ctx, model.QuerySpec{
			Measure: "responses",
			Filters: filters,
			From:    from,
			To:      to,
		})
		if err != nil {
			return fmt.Errorf("total responses: %w", err)
		}
		if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
			summary.TotalResponses = toInt64(result.Rows[0][0])
		}
		return nil
	})

	g.Go(func() error {
		result, err := s.warehouse.Query(ctx, model.QuerySpec{
			Measure: "avg_score",
			Filters: filters,
			From:    from,
			To:      to,
		})
		if err != nil {
			return fmt.Errorf("average score: %w", err)
		}
		if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
			summary.AverageScore = toFloat64(result.Rows[0][0])
		}
		return nil
	})

	g.Go(func() error {
		result, err := s.warehouse.Query(ctx, model.QuerySpec{
			Measure: "avg_score",
			GroupBy: []string{"category"},
			Filters: filters,
			From:    from,
			To:      to,
		})
		if err != nil {
			return fmt.Errorf("category breakdown: %w", err)
		}
		for _, row := range result.Rows {
			if len(row) < 2 {
				continue
			}
			category, ok := row[0].(string)
			if !ok {
				continue
			}
			summary.ByCategory[category] = toFloat64(row[1])
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summary, nil
}

// GenerateInsights runs the query and hands the aggregates to the
// external model.
func (s *Service) GenerateInsights(ctx context.Context, focus string, spec model.QuerySpec) ([]model.Insight, error) {
	result, err := s.warehouse.Query(ctx, spec)
	if err != nil {
		return nil, err
	}

	findings, err := s.insights.Generate(ctx, focus, result)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Insights generated",
		util.String("focus", focus),
		util.Int("rows", len(result.Rows)),
		util.Int("findings", len(findings)),
	)
	return findings, nil
}

// The driver's scan targets are interface{}; ClickHouse hands counts
// back as unsigned ints and averages as floats, fakes hand back native
// Go types. Coerce both.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
