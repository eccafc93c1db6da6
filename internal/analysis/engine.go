// Package analysis runs the cached rules against files and turns the raw
// findings into annotations.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
	"github.com/JNZader/rosie/internal/normalize"
	"github.com/JNZader/rosie/internal/rosie"
	"github.com/JNZader/rosie/internal/rules"
	"github.com/JNZader/rosie/internal/worker"
)

const (
	DefaultMaxConcurrency = 5
	DefaultMaxFileSize    = 512 * 1024
)

// Skip reasons reported in FileResult.
const (
	SkipUnknownLanguage = "unknown language"
	SkipNoRules         = "no applicable rules"
	SkipTooLarge        = "file too large"
)

// Analyzer runs rules against one file.
type Analyzer interface {
	Analyze(ctx context.Context, req rosie.Request) ([]normalize.Finding, error)
}

// Recorder persists the annotations of a run.
type Recorder interface {
	Record(ctx context.Context, runID string, annotations []normalize.Annotation) error
}

// Options tunes an Engine.
type Options struct {
	MaxConcurrency int
	MinSeverity    normalize.Severity
	MaxFileSize    int64
}

// Engine analyzes files with the rules of one project cache.
type Engine struct {
	cache    *cache.RulesCache
	analyzer Analyzer
	recorder Recorder
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder stores every run's annotations.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an analysis engine.
func NewEngine(rc *cache.RulesCache, analyzer Analyzer, opts Options, options ...Option) *Engine {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	e := &Engine{
		cache:    rc,
		analyzer: analyzer,
		opts:     opts,
		log:      logger.Default().WithPrefix("ENGINE"),
		metrics:  metrics.Global(),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Result contains the outcome of one analysis run.
type Result struct {
	RunID            string        `json:"run_id"`
	TotalAnnotations int           `json:"total_annotations"`
	Duration         time.Duration `json:"duration"`
	Files            []FileResult  `json:"files"`
}

// FileResult contains the annotations of a single file.
type FileResult struct {
	Path        string                 `json:"path"`
	RelPath     string                 `json:"rel_path"`
	Language    rules.Language         `json:"language"`
	Rules       int                    `json:"rules"`
	Annotations []normalize.Annotation `json:"annotations"`
	Skipped     string                 `json:"skipped,omitempty"`
	Dropped     int                    `json:"dropped,omitempty"`
	Duplicates  int                    `json:"duplicates,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Error       error                  `json:"-"`
	ErrorMsg    string                 `json:"error,omitempty"`
}

// Errors returns the files that failed.
func (r *Result) Errors() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Error != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Annotations returns every annotation of the run in file order.
func (r *Result) Annotations() []normalize.Annotation {
	all := make([]normalize.Annotation, 0, r.TotalAnnotations)
	for _, f := range r.Files {
		all = append(all, f.Annotations...)
	}
	return all
}

// AnalyzeFiles analyzes paths in parallel. Per-file failures are reported in
// the result, not returned.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	timer := e.metrics.Timer(metrics.MetricAnalysisDuration).Start()
	defer timer.Stop()

	result := &Result{
		RunID: uuid.New().String(),
		Files: make([]FileResult, len(paths)),
	}
	if len(paths) == 0 {
		return result, nil
	}

	tasks := make([]worker.Task, 0, len(paths))
	for i, path := range paths {
		tasks = append(tasks, worker.NewFuncTask(fmt.Sprintf("analyze:%d:%s", i, path), func(ctx context.Context) error {
			result.Files[i] = e.AnalyzeFile(ctx, path)
			return result.Files[i].Error
		}))
	}

	for i, r := range worker.Run(ctx, worker.Config{Workers: e.opts.MaxConcurrency}, tasks) {
		if result.Files[i].Path == "" {
			// The task never ran.
			result.Files[i] = FileResult{Path: paths[i], Error: r.Error, ErrorMsg: errorString(r.Error)}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	for _, f := range result.Files {
		result.TotalAnnotations += len(f.Annotations)
	}
	result.Duration = time.Since(start)

	if e.recorder != nil && result.TotalAnnotations > 0 {
		if err := e.recorder.Record(ctx, result.RunID, result.Annotations()); err != nil {
			e.log.Warn("recording history: %v", err)
		}
	}

	e.log.Info("analysis completed: %d files, %d annotations, %d errors in %v",
		len(result.Files), result.TotalAnnotations, len(result.Errors()), result.Duration)
	return result, nil
}

// AnalyzeFile reads, analyzes and normalizes a single file.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) FileResult {
	start := time.Now()
	fr := e.analyzeFile(ctx, path)
	fr.Duration = time.Since(start)
	return fr
}

func (e *Engine) analyzeFile(ctx context.Context, path string) FileResult {
	fr := FileResult{
		Path:     path,
		RelPath:  e.relativePath(path),
		Language: rules.LanguageFromPath(path),
	}

	fail := func(err error) FileResult {
		e.metrics.Counter(metrics.MetricAnalysisErrors).Inc()
		fr.Error = err
		fr.ErrorMsg = err.Error()
		e.log.Warn("analyzing %s: %v", fr.RelPath, err)
		return fr
	}
	skip := func(reason string) FileResult {
		e.metrics.Counter(metrics.MetricFilesSkipped).Inc()
		fr.Skipped = reason
		e.log.Debug("skipping %s: %s", fr.RelPath, reason)
		return fr
	}

	if fr.Language == rules.LanguageUnknown {
		return skip(SkipUnknownLanguage)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fail(fmt.Errorf("resolving path: %w", err))
	}

	ruleset := e.cache.GetRules(fr.Language, absPath)
	fr.Rules = len(ruleset)
	if len(ruleset) == 0 {
		return skip(SkipNoRules)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fail(fmt.Errorf("stat: %w", err))
	}
	if info.Size() > e.opts.MaxFileSize {
		return skip(SkipTooLarge)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fail(fmt.Errorf("reading file: %w", err))
	}
	code := string(content)

	findings, err := e.analyzer.Analyze(ctx, rosie.Request{
		Filename: fr.RelPath,
		Language: fr.Language,
		Code:     code,
		Rules:    ruleset,
	})
	if err != nil {
		return fail(err)
	}

	annotations, stats := normalize.NormalizeWithStats(findings, normalize.NewLineIndex(code), fr.RelPath,
		normalize.WithRuleLookup(e.ruleLookup(fr.Language)))

	fr.Dropped = stats.Dropped
	fr.Duplicates = stats.Duplicates
	fr.Annotations = filterSeverity(annotations, e.opts.MinSeverity)

	e.metrics.Counter(metrics.MetricFilesAnalyzed).Inc()
	e.metrics.Counter(metrics.MetricAnnotations).Add(int64(len(fr.Annotations)))
	e.metrics.Counter(metrics.MetricFindingsDropped).Add(int64(stats.Dropped))
	e.metrics.Counter(metrics.MetricFindingsDeduped).Add(int64(stats.Duplicates))
	return fr
}

func (e *Engine) ruleLookup(lang rules.Language) normalize.RuleLookup {
	return func(ruleID string) (string, string, bool) {
		r, err := e.cache.RuleByLanguageAndID(lang, ruleID)
		if err != nil {
			return "", "", false
		}
		return r.RulesetName, r.RuleName, true
	}
}

// relativePath mirrors the cache: slash separated with a leading "/".
func (e *Engine) relativePath(path string) string {
	rel := path
	if root := e.cache.Root(); root != "" {
		if abs, err := filepath.Abs(path); err == nil {
			if r, err := filepath.Rel(root, abs); err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				rel = r
			}
		}
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}

func filterSeverity(annotations []normalize.Annotation, floor normalize.Severity) []normalize.Annotation {
	if floor == normalize.SeverityInformational {
		return annotations
	}
	kept := annotations[:0]
	for _, a := range annotations {
		if a.Severity >= floor {
			kept = append(kept, a)
		}
	}
	return kept
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
