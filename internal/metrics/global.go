package metrics

import "sync"

var (
	globalCollector *Collector
	once            sync.Once
)

// Global returns the process-wide collector.
func Global() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// Metric names
const (
	// Cache coordinator
	MetricTicksTotal      = "rosie_coordinator_ticks_total"
	MetricTicksSkipped    = "rosie_coordinator_ticks_skipped_total"
	MetricRefreshesTotal  = "rosie_cache_refreshes_total"
	MetricClearsTotal     = "rosie_cache_clears_total"
	MetricFetchErrors     = "rosie_ruleset_fetch_errors_total"
	MetricCachedRules     = "rosie_cache_rules"
	MetricActiveSessions  = "rosie_sessions_active"
	MetricRefreshDuration = "rosie_cache_refresh_duration"

	// Analysis
	MetricFilesAnalyzed    = "rosie_files_analyzed_total"
	MetricFilesSkipped     = "rosie_files_skipped_total"
	MetricAnalysisErrors   = "rosie_analysis_errors_total"
	MetricAnnotations      = "rosie_annotations_total"
	MetricFindingsDropped  = "rosie_findings_dropped_total"
	MetricFindingsDeduped  = "rosie_findings_deduplicated_total"
	MetricAnalysisDuration = "rosie_analysis_duration"
)
