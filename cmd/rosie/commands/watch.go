package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/coordinator"
	"github.com/JNZader/rosie/internal/metrics"
	"github.com/JNZader/rosie/internal/profiler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the rules cache in sync until interrupted",
	Long: `Refresh the project's rules cache on a fixed interval.

Each tick re-reads rosie.yml when it changed, refetches the configured
rulesets, and refetches them again when the service reports newer rules.
Problems with the configured ruleset names are logged after every refresh.

Examples:
  rosie watch
  rosie watch --interval 30s
  rosie watch --metrics
  rosie watch --diag-addr localhost:6060`,

	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchInterval time.Duration
	watchMetrics  bool
	watchDiagAddr string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "refresh interval (default is sync.interval)")
	watchCmd.Flags().BoolVar(&watchMetrics, "metrics", false, "print metrics in Prometheus format on exit")
	watchCmd.Flags().StringVar(&watchDiagAddr, "diag-addr", "", "serve pprof and /metrics on this address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if watchInterval > 0 {
		cfg.Sync.Interval = watchInterval
	}

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	s.cache.OnUpdate(func(st cache.Stats) {
		s.log.Info("rules cache updated: %d rules from %d rulesets", st.Rules, st.Rulesets)
		s.inspectConfig()
	})

	if watchDiagAddr != "" {
		prof, err := profiler.New(profiler.Config{HTTPAddr: watchDiagAddr, Logger: s.log.WithPrefix("PROF")})
		if err != nil {
			return err
		}
		defer func() {
			if err := prof.Stop(); err != nil {
				s.log.Warn("stopping diagnostics: %v", err)
			}
		}()
		s.log.Info("diagnostics on http://%s", prof.Addr())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := coordinator.NewScheduler(s.log.WithPrefix("SCHED"))
	id := sched.Start(ctx, s.root, s.coordinator, cfg.Sync.Interval)
	if !isQuiet() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s every %s (Ctrl+C to stop)\n", s.root, cfg.Sync.Interval)
	}

	<-ctx.Done()
	sched.StopAll()
	s.log.Debug("session %s stopped", id)

	if watchMetrics {
		fmt.Fprint(cmd.OutOrStdout(), metrics.Global().ExportPrometheus())
	}
	return nil
}
