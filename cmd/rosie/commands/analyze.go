package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JNZader/rosie/internal/analysis"
	"github.com/JNZader/rosie/internal/config"
	"github.com/JNZader/rosie/internal/git"
	"github.com/JNZader/rosie/internal/normalize"
	"github.com/JNZader/rosie/internal/profiler"
	"github.com/JNZader/rosie/internal/report"
	"github.com/JNZader/rosie/internal/rules"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [paths...]",
	Short: "Analyze files with the project's rules",
	Long: `Sync the rules cache once, run the applicable rules against each file on
the Rosie service and print the resulting annotations. Directories are
walked recursively, skipping analysis.ignore_patterns.

Examples:
  rosie analyze src/app.py
  rosie analyze src --format sarif -o report.sarif
  rosie analyze . --fail-on error
  rosie analyze --changed --base main`,

	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("format", "f", "", "output format (markdown, json, sarif)")
	analyzeCmd.Flags().StringP("output", "o", "", "write report to file")
	analyzeCmd.Flags().String("fail-on", "", "exit with an error when an annotation reaches this severity")
	analyzeCmd.Flags().String("min-severity", "", "drop annotations below this severity")
	analyzeCmd.Flags().Int("concurrency", 0, "max concurrent file analyses (0 = analysis.max_concurrency)")
	analyzeCmd.Flags().Bool("changed", false, "analyze files changed from --base, plus untracked files")
	analyzeCmd.Flags().String("base", "HEAD", "git revision compared by --changed")
	analyzeCmd.Flags().Bool("staged", false, "analyze files staged in git")
	analyzeCmd.Flags().String("cpuprofile", "", "write CPU profile to file")
	analyzeCmd.Flags().String("memprofile", "", "write memory profile to file")
}

// ErrSeverityThreshold is returned when --fail-on is reached.
var ErrSeverityThreshold = errors.New("annotations at or above the failure threshold")

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cmd, cfg)

	reporter, err := report.NewReporter(cfg.Output.Format)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(report.AvailableFormats(), ", "))
	}

	cpuProfile, _ := cmd.Flags().GetString("cpuprofile")
	memProfile, _ := cmd.Flags().GetString("memprofile")
	if cpuProfile != "" || memProfile != "" {
		prof, err := profiler.New(profiler.Config{CPUProfile: cpuProfile, MemProfile: memProfile})
		if err != nil {
			return fmt.Errorf("failed to start profiler: %w", err)
		}
		defer func() {
			if err := prof.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to stop profiler: %v\n", err)
			}
		}()
	}

	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	files, err := selectFiles(cmd, s.root, args, cfg.Analysis.IgnorePatterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to analyze")
	}

	if err := s.sync(ctx); err != nil {
		return err
	}

	engine, closeEngine, err := s.engine()
	if err != nil {
		return err
	}
	defer closeEngine()

	result, err := engine.AnalyzeFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	for _, f := range result.Errors() {
		s.log.Warn("%s: %s", f.RelPath, f.ErrorMsg)
	}

	output, err := reporter.Generate(result)
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	if err := WriteOutput(cmd.OutOrStdout(), output, cfg.Output.File); err != nil {
		return err
	}

	failOn, _ := cmd.Flags().GetString("fail-on")
	if failOn != "" && reachesSeverity(result, normalize.ParseSeverity(failOn)) {
		return ErrSeverityThreshold
	}
	return nil
}

func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) {
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.Output.Format = format
	}
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		cfg.Output.File = output
		if format, _ := cmd.Flags().GetString("format"); format == "" {
			if detected := DetectFormatFromPath(output); detected != "" {
				cfg.Output.Format = detected
			}
		}
	}
	if sev, _ := cmd.Flags().GetString("min-severity"); sev != "" {
		cfg.Analysis.MinSeverity = sev
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		cfg.Analysis.MaxConcurrency = n
	}
}

// selectFiles picks files from git when --changed or --staged is set and
// from the path arguments otherwise.
func selectFiles(cmd *cobra.Command, root string, args, ignore []string) ([]string, error) {
	changed, _ := cmd.Flags().GetBool("changed")
	staged, _ := cmd.Flags().GetBool("staged")
	if !changed && !staged {
		if len(args) == 0 {
			args = []string{root}
		}
		return collectFiles(root, args, ignore)
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("path arguments cannot be combined with --changed or --staged")
	}

	repo, err := git.NewRepo(cmd.Context(), root)
	if err != nil {
		return nil, err
	}
	var candidates []string
	if staged {
		candidates, err = repo.StagedFiles(cmd.Context())
	} else {
		base, _ := cmd.Flags().GetString("base")
		candidates, err = repo.ChangedFiles(cmd.Context(), base)
	}
	if err != nil {
		return nil, err
	}

	files := candidates[:0]
	for _, path := range candidates {
		rel, err := filepath.Rel(repo.Root(), path)
		if err != nil || rules.LanguageFromPath(path) == rules.LanguageUnknown || config.MatchesIgnorePattern(rel, ignore) {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// collectFiles expands directories into the analyzable files below them.
// Explicit file arguments are always kept.
func collectFiles(root string, args, ignore []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				rel = path
			}
			if path == abs {
				return nil
			}
			if d.IsDir() {
				if config.MatchesIgnorePattern(rel+"/", ignore) {
					return filepath.SkipDir
				}
				return nil
			}
			if config.MatchesIgnorePattern(rel, ignore) {
				return nil
			}
			if rules.LanguageFromPath(path) != rules.LanguageUnknown {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return files, nil
}

func reachesSeverity(result *analysis.Result, threshold normalize.Severity) bool {
	for _, a := range result.Annotations() {
		if a.Severity >= threshold {
			return true
		}
	}
	return false
}
