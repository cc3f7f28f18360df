package analytics

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"insights-service/internal/client"
	"insights-service/internal/model"
)

var ErrInvalidQuery = errors.New("invalid query spec")

// Warehouse answers structured query descriptions with tabular rows.
// All aggregation, grouping, and windowing happens inside the engine;
// this layer only assembles parameterized SQL.
type Warehouse interface {
	Query(ctx context.Context, spec model.QuerySpec) (*model.ResultSet, error)
	HealthCheck(ctx context.Context) error
}

const responsesTable = "survey_responses"

// measures and dimensions are allowlists: QuerySpec fields are chosen
// by clients, so nothing from a spec is ever spliced into SQL as-is.
var measures = map[string]string{
	"responses":   "count()",
	"avg_score":   "avg(score)",
	"min_score":   "min(score)",
	"max_score":   "max(score)",
	"respondents": "uniqExact(respondent_id)",
}

var dimensions = map[string]string{
	"survey_id":  "survey_id",
	"category":   "category",
	"question":   "question_id",
	"region":     "region",
	"department": "department",
	"month":      "toStartOfMonth(submitted_at)",
}

// ClickHouseWarehouse implements Warehouse against the survey store.
type ClickHouseWarehouse struct {
	client *client.ClickHouseClient
}

func NewClickHouseWarehouse(ch *client.ClickHouseClient) *ClickHouseWarehouse {
	return &ClickHouseWarehouse{client: ch}
}

func (w *ClickHouseWarehouse) Query(ctx context.Context, spec model.QuerySpec) (*model.ResultSet, error) {
	sql, args, columns, err := buildQuery(spec)
	if err != nil {
		return nil, err
	}

	rows, err := w.client.QueryRows(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse query failed: %w", err)
	}
	defer rows.Close()

	// The driver needs concrete scan targets, so allocate them from the
	// reported column types.
	columnTypes := rows.ColumnTypes()
	result := &model.ResultSet{Columns: columns}
	for rows.Next() {
		dest := make([]interface{}, len(columnTypes))
		for i, ct := range columnTypes {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse row: %w", err)
		}

		scanned := make([]interface{}, len(dest))
		for i, value := range dest {
			scanned[i] = reflect.ValueOf(value).Elem().Interface()
		}
		result.Rows = append(result.Rows, scanned)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse row iteration failed: %w", err)
	}

	return result, nil
}

func (w *ClickHouseWarehouse) HealthCheck(ctx context.Context) error {
	return w.client.HealthCheck(ctx)
}

func buildQuery(spec model.QuerySpec) (string, []interface{}, []string, error) {
	measureExpr, ok := measures[spec.Measure]
	if !ok {
		return "", nil, nil, fmt.Errorf("%w: unknown measure %q", ErrInvalidQuery, spec.Measure)
	}

	var selectCols, groupCols, columns []string
	for _, dim := range spec.GroupBy {
		expr, ok := dimensions[dim]
		if !ok {
			return "", nil, nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidQuery, dim)
		}
		selectCols = append(selectCols, fmt.Sprintf("%s AS %s", expr, dim))
		groupCols = append(groupCols, dim)
		columns = append(columns, dim)
	}
	selectCols = append(selectCols, fmt.Sprintf("%s AS %s", measureExpr, spec.Measure))
	columns = append(columns, spec.Measure)

	var conditions []string
	var args []interface{}

	for col, value := range spec.Filters {
		expr, ok := dimensions[col]
		if !ok {
			return "", nil, nil, fmt.Errorf("%w: unknown filter %q", ErrInvalidQuery, col)
		}
		conditions = append(conditions, fmt.Sprintf("%s = ?", expr))
		args = append(args, value)
	}
	if !spec.From.IsZero() {
		conditions = append(conditions, "submitted_at >= ?")
		args = append(args, spec.From)
	}
	if !spec.To.IsZero() {
		conditions = append(conditions, "submitted_at < ?")
		args = append(args, spec.To)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectCols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(responsesTable)
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	if len(groupCols) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
	}

	limit := spec.Limit
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	return sb.String(), args, columns, nil
}
