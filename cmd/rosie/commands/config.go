package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JNZader/rosie/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View the rosie configuration and check the project's rosie.yml.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the current configuration, including values from
config file, environment variables, and defaults.

Examples:
  # Show config in YAML format
  rosie config show

  # Show config as JSON
  rosie config show --json`,

	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the rulesets declared in rosie.yml",
	Long: `Sync the rules cache once and report invalid, unknown and empty
rulesets declared in the project's rosie.yml.

Examples:
  rosie config check
  rosie config check -p ../service`,

	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

var configShowJSON bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCheckCmd)

	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output as JSON")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, used, err := loadConfig()
	if err != nil {
		return err
	}
	masked := maskSensitiveConfig(cfg)
	out := cmd.OutOrStdout()

	if configShowJSON {
		return writeJSON(out, masked)
	}

	if !isQuiet() {
		if used != "" {
			fmt.Fprintf(out, "# Config file: %s\n\n", used)
		} else {
			fmt.Fprint(out, "# No config file found, using defaults\n\n")
		}
	}
	return outputConfigYAML(out, masked)
}

// maskSensitiveConfig creates a copy with sensitive values masked
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	if masked.Server.APIKey != "" {
		masked.Server.APIKey = "***REDACTED***"
	}
	return &masked
}

func outputConfigYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	file, found, err := s.locator.Locate()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !found {
		fmt.Fprintf(out, "No project config found in %s\n", s.root)
		return nil
	}

	if err := s.sync(cmd.Context()); err != nil {
		return err
	}
	diags := s.inspectConfig()
	if len(diags) == 0 {
		fmt.Fprintf(out, "%s: %d rulesets OK\n", file.Path, len(s.cache.RulesetNames()))
		return nil
	}
	for _, d := range diags {
		fmt.Fprintf(out, "%s:%d:%d: %s\n", file.Path, d.Line, d.Column, d.Message)
	}
	return fmt.Errorf("%d problems in %s", len(diags), file.Path)
}
