package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JNZader/rosie/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Search and summarize stored annotations",
	Long: `Query the annotation history database. Annotations are recorded by
"rosie analyze" when history.enabled is true.`,
}

var historySearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search stored annotations",
	Long: `Full-text search over annotation messages, optionally filtered.

Examples:
  rosie history search "sql injection"
  rosie history search --file "src/*" --min-severity error
  rosie history search --run 6f1c... --json`,

	Args: cobra.MaximumNArgs(1),
	RunE: runHistorySearch,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show annotation statistics",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete annotations older than a duration",
	Long: `Delete stored annotations older than --older-than.

Examples:
  rosie history prune --older-than 720h`,

	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historySearchCmd, historyStatsCmd, historyPruneCmd)

	historySearchCmd.Flags().String("file", "", "filter by file (* wildcard)")
	historySearchCmd.Flags().String("ruleset", "", "filter by ruleset")
	historySearchCmd.Flags().String("run", "", "filter by analysis run id")
	historySearchCmd.Flags().String("min-severity", "", "minimum severity")
	historySearchCmd.Flags().Duration("since", 0, "only annotations newer than this")
	historySearchCmd.Flags().Int("limit", 20, "maximum results")
	historySearchCmd.Flags().Bool("json", false, "output as JSON")

	historyStatsCmd.Flags().Bool("json", false, "output as JSON")

	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "age of annotations to delete")
}

func openHistoryFromConfig() (*history.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openHistory(cfg)
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	store, err := openHistoryFromConfig()
	if err != nil {
		return err
	}
	defer store.Close()

	q := history.SearchQuery{}
	if len(args) > 0 {
		q.Text = args[0]
	}
	q.File, _ = cmd.Flags().GetString("file")
	q.Ruleset, _ = cmd.Flags().GetString("ruleset")
	q.RunID, _ = cmd.Flags().GetString("run")
	q.MinSeverity, _ = cmd.Flags().GetString("min-severity")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		q.Since = time.Now().Add(-since)
	}

	result, err := store.Search(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("searching history: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, result)
	}
	if len(result.Records) == 0 {
		fmt.Fprintln(out, "No annotations found")
		return nil
	}

	fmt.Fprintf(out, "Showing %d of %d annotations\n\n", len(result.Records), result.TotalCount)
	for _, r := range result.Records {
		printRecord(out, r)
	}
	return nil
}

func printRecord(w io.Writer, r history.Record) {
	rule := r.RuleID
	if r.RulesetName != "" && r.RuleName != "" {
		rule = r.RulesetName + "/" + r.RuleName
	}
	fmt.Fprintf(w, "[%s] %s:%d:%d %s\n", r.Severity, r.Filename, r.Line, r.Column, rule)
	fmt.Fprintf(w, "   %s\n", truncate(r.Message, 70))
	fmt.Fprintf(w, "   %s  run %s\n\n", r.CreatedAt.Format("2006-01-02 15:04"), r.RunID)
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	store, err := openHistoryFromConfig()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.GetStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, stats)
	}

	fmt.Fprintf(out, "Annotations: %d across %d runs\n", stats.TotalAnnotations, stats.Runs)
	if stats.TotalAnnotations == 0 {
		return nil
	}

	fmt.Fprintln(out, "\nBy severity")
	for _, sev := range []string{"critical", "error", "warning", "informational"} {
		if n := stats.BySeverity[sev]; n > 0 {
			fmt.Fprintf(out, "  %-14s %s %d\n", sev, progressBar(n, stats.TotalAnnotations, 20), n)
		}
	}
	printTop(out, "By ruleset", stats.ByRuleset, stats.TotalAnnotations, 10)
	printTop(out, "Top files", stats.ByFile, stats.TotalAnnotations, 10)
	return nil
}

func printTop(w io.Writer, title string, counts map[string]int64, total int64, limit int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}

	fmt.Fprintf(w, "\n%s\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-30s %s %d\n", truncate(k, 30), progressBar(counts[k], total, 20), counts[k])
	}
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	store, err := openHistoryFromConfig()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("pruning history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d annotations\n", n)
	return nil
}

func progressBar(current, total int64, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
