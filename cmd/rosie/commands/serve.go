package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JNZader/rosie/internal/coordinator"
	"github.com/JNZader/rosie/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rules and analysis as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout for the project.
The rules cache is kept in sync in the background while tools are served.

Tools: rosie_rules, rosie_analyze, rosie_check_config, rosie_cache_stats
and, when history is enabled, rosie_history_search.

Example MCP client configuration:
  {"command": "rosie", "args": ["serve", "-p", "/path/to/project"]}`,

	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	engine, closeEngine, err := s.engine()
	if err != nil {
		return err
	}
	defer closeEngine()

	deps := mcp.Deps{Cache: s.cache, Engine: engine, Config: s.locator}
	if s.history != nil {
		deps.History = s.history
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := coordinator.NewScheduler(s.log.WithPrefix("SCHED"))
	sched.Start(ctx, s.root, s.coordinator, cfg.Sync.Interval)
	defer sched.StopAll()

	server := mcp.NewServer("rosie", Version)
	if err := mcp.RegisterTools(server, deps); err != nil {
		return err
	}
	return server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
