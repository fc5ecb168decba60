package domain

import (
	"sort"
	"time"
)

// InsightType classifies a generated insight.
type InsightType string

const (
	// InsightAlert is a warning about the user's financial behavior.
	InsightAlert InsightType = "Alert"
	// InsightAdvice is a suggestion for improving the user's finances.
	InsightAdvice InsightType = "Advice"
)

// ParseInsightType maps a model-supplied type string to a known InsightType.
// Unknown or empty values default to Advice.
func ParseInsightType(s string) InsightType {
	switch s {
	case string(InsightAlert), "alert", "ALERT":
		return InsightAlert
	default:
		return InsightAdvice
	}
}

// InsightCandidate is the output of one generation run before acceptance.
// It exists only within a single pipeline run; accepted candidates become
// InsightRecords.
type InsightCandidate struct {
	Type     InsightType
	Title    string
	Body     string
	Category string // empty when the model supplied none

	// Hash is the truncated content digest over Title+Body, filled in by the
	// deduplicator.
	Hash string
}

// InsightRecord is the persisted unit in the insight store. Records are
// append-only: after creation only the Read flag may change.
type InsightRecord struct {
	ID        string
	Type      InsightType
	Title     string
	Body      string
	Category  string
	Hash      string
	Read      bool
	CreatedAt time.Time
}

// UITip is an ephemeral insight for the insights screen. Tips are returned to
// the caller directly and never persisted.
type UITip struct {
	Text string
	Icon string // alert, advice, info or default
}

// ReportSection is one category-grouped paragraph of a generated report.
type ReportSection struct {
	Category string
	Text     string
}

// SortInsightsDesc orders records by creation time, newest first. The sort is
// stable so records sharing a timestamp keep their store order.
func SortInsightsDesc(records []InsightRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
