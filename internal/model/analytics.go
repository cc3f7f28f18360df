package model

import "time"

// QuerySpec is a structured description of a warehouse query. The
// warehouse turns it into SQL; callers never pass raw query strings.
type QuerySpec struct {
	Measure  string            `json:"measure"`
	GroupBy  []string          `json:"group_by,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
	From     time.Time         `json:"from,omitempty"`
	To       time.Time         `json:"to,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// ResultSet is a generic tabular result from the warehouse.
type ResultSet struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Summary aggregates the headline dashboard metrics.
type Summary struct {
	TotalResponses int64              `json:"total_responses"`
	AverageScore   float64            `json:"average_score"`
	ByCategory     map[string]float64 `json:"by_category"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// Insight is one categorized narrative statement from the generative
// provider.
type Insight struct {
	Category string `json:"category"`
	Severity string `json:"severity,omitempty"`
	Text     string `json:"text"`
}
