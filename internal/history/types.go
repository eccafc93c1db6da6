// Package history stores produced annotations in SQLite so past analysis
// runs can be searched and summarized.
package history

import "time"

// Record is one stored annotation.
type Record struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Filename    string    `json:"filename"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name,omitempty"`
	RulesetName string    `json:"ruleset_name,omitempty"`
	Severity    string    `json:"severity"`
	Category    string    `json:"category"`
	Message     string    `json:"message"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Line        int       `json:"line"`
	Column      int       `json:"column"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchQuery filters stored annotations. Zero fields don't filter.
type SearchQuery struct {
	// Text is a full-text match on the message
	Text string
	// File filters by filename; "*" acts as a wildcard
	File string
	// Ruleset filters by ruleset name
	Ruleset string
	// RunID filters by analysis run
	RunID string
	// MinSeverity keeps annotations at or above this level
	MinSeverity string
	Since       time.Time
	Limit       int
	Offset      int
}

// SearchResult contains search results with metadata.
type SearchResult struct {
	Records    []Record    `json:"records"`
	TotalCount int64       `json:"total_count"`
	Query      SearchQuery `json:"-"`
}

// Stats contains aggregate statistics from the history database.
type Stats struct {
	TotalAnnotations int64            `json:"total_annotations"`
	Runs             int64            `json:"runs"`
	BySeverity       map[string]int64 `json:"by_severity"`
	ByRuleset        map[string]int64 `json:"by_ruleset"`
	ByFile           map[string]int64 `json:"by_file"`
}
