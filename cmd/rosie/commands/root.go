// Package commands contains all CLI commands for rosie.
//
// This package uses the Cobra library for CLI management.
// Each command is defined in its own file and registered in init().
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JNZader/rosie/internal/config"
	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/report"
)

var (
	// cfgFile holds the path to the config file (from --config flag)
	cfgFile string

	// projectRoot overrides project.root
	projectRoot string

	// verbose enables debug logging
	verbose bool

	// quiet suppresses all output except errors
	quiet bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rosie",
	Short: "Rule-based static analysis against a remote Rosie service",
	Long: `Rosie keeps the rulesets named in a project's rosie.yml in sync with the
analysis service and runs them against your files.

Examples:
  # Keep the rules cache in sync while you work
  rosie watch

  # Show which rules apply to a file
  rosie rules src/app.py

  # Analyze a directory and write SARIF
  rosie analyze src --output report.sarif

  # Show current configuration
  rosie config show`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		report.ToolVersion = Version
		return initializeLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .rosie.yaml)")
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", "", "project root (default is project.root)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
}

func initializeLogging() error {
	switch {
	case quiet:
		logger.SetLevel(logger.LevelError)
	case verbose:
		logger.SetLevel(logger.LevelDebug)
	}
	return nil
}

// loadConfig loads the tool configuration, applying global flags on top.
// A .env file in the project root supplies ROSIE_* variables that are not
// already set.
func loadConfig() (*config.Config, string, error) {
	loadDotEnv()

	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if projectRoot != "" {
		cfg.Project.Root = projectRoot
	}

	if !verbose && !quiet {
		level, err := logger.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, "", err
		}
		logger.SetLevel(level)
	}

	return cfg, loader.ConfigFileUsed(), nil
}

func loadDotEnv() {
	dir := projectRoot
	if dir == "" {
		dir = "."
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))
}

// isQuiet returns true if quiet mode is enabled
func isQuiet() bool {
	return quiet
}
