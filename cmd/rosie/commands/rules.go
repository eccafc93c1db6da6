package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [files...]",
	Short: "Show the rules that apply to files",
	Long: `Sync the rules cache once and list the rules that apply to each file,
after the ignore section of rosie.yml is applied. Without files, print a
summary of the cache.

Examples:
  rosie rules
  rosie rules src/app.py src/web/index.ts
  rosie rules src/app.py --json`,

	RunE: runRules,
}

var rulesJSON bool

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "output as JSON")
}

// fileRules is the rules listing of one file.
type fileRules struct {
	File     string             `json:"file"`
	Language rules.Language     `json:"language"`
	Rules    []rules.RuleRecord `json:"rules"`
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	if err := s.sync(cmd.Context()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		st := s.cache.Stats()
		if rulesJSON {
			return writeJSON(out, st)
		}
		printCacheStats(out, st, s.cache.RulesetNames())
		return nil
	}

	listings := make([]fileRules, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", arg, err)
		}
		lang := rules.LanguageFromPath(abs)
		listings = append(listings, fileRules{
			File:     arg,
			Language: lang,
			Rules:    s.cache.GetRules(lang, abs),
		})
	}

	if rulesJSON {
		return writeJSON(out, listings)
	}
	for _, l := range listings {
		fmt.Fprintf(out, "%s (%s): %d rules\n", l.File, l.Language, len(l.Rules))
		for _, r := range l.Rules {
			fmt.Fprintf(out, "  %s\n", r.Key())
		}
	}
	return nil
}

func printCacheStats(w io.Writer, st cache.Stats, names []string) {
	fmt.Fprintf(w, "Rulesets: %d\n", st.Rulesets)
	for _, name := range names {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	fmt.Fprintf(w, "Rules:    %d\n", st.Rules)

	langs := make([]string, 0, len(st.RulesByLang))
	for lang := range st.RulesByLang {
		langs = append(langs, string(lang))
	}
	sort.Strings(langs)
	for _, lang := range langs {
		fmt.Fprintf(w, "  %-12s %d\n", lang, st.RulesByLang[rules.Language(lang)])
	}
	fmt.Fprintf(w, "Ignored:  %d rule entries\n", st.IgnoreEntries)
	fmt.Fprintf(w, "Updated:  %d\n", st.LastUpdated)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
