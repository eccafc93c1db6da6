package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/JNZader/rosie/internal/analysis"
	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/config"
	"github.com/JNZader/rosie/internal/coordinator"
	"github.com/JNZader/rosie/internal/history"
	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/normalize"
	"github.com/JNZader/rosie/internal/projectconfig"
	"github.com/JNZader/rosie/internal/rosie"
)

// session wires one project's cache, client and coordinator.
type session struct {
	cfg         *config.Config
	root        string
	log         *logger.Logger
	cache       *cache.RulesCache
	client      *rosie.Client
	locator     *projectconfig.Locator
	coordinator *coordinator.Coordinator

	// history is set by engine when history is enabled
	history *history.Store
}

func newSession(cfg *config.Config) (*session, error) {
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	log := logger.Default().WithField("project", filepath.Base(root))
	retry := rosie.DefaultRetryConfig()
	retry.MaxRetries = cfg.Server.MaxRetries

	rc := cache.New(root,
		cache.WithLogger(log.WithPrefix("CACHE")),
		cache.WithFilteredEntries(cfg.Cache.FilteredEntries),
	)
	client := rosie.NewClient(rosie.Options{
		BaseURL:      cfg.Server.BaseURL,
		APIKey:       cfg.Server.APIKey,
		Timeout:      cfg.Server.Timeout,
		RateLimitRPS: cfg.Server.RateLimitRPS,
		Retry:        retry,
		Logger:       log.WithPrefix("ROSIE"),
	})
	locator := projectconfig.NewLocator(root, cfg.Project.ConfigFiles...)

	return &session{
		cfg:         cfg,
		root:        root,
		log:         log,
		cache:       rc,
		client:      client,
		locator:     locator,
		coordinator: coordinator.New(rc, client, locator, coordinator.WithLogger(log.WithPrefix("SYNC"))),
	}, nil
}

// sync runs a single tick. A failed tick is only an error when it leaves
// the cache without rules.
func (s *session) sync(ctx context.Context) error {
	outcome, err := s.coordinator.Tick(ctx)
	if err != nil {
		if errors.Is(err, rosie.ErrUnauthorized) || s.cache.IsEmpty() {
			return fmt.Errorf("syncing rules: %w", err)
		}
		s.log.Warn("using stale rules: %v", err)
	}
	s.log.Debug("sync %s", outcome)
	return nil
}

// engine builds an analysis engine, opening the history store when enabled.
// The returned close function must be called.
func (s *session) engine() (*analysis.Engine, func(), error) {
	opts := analysis.Options{
		MaxConcurrency: s.cfg.Analysis.MaxConcurrency,
		MinSeverity:    normalize.ParseSeverity(s.cfg.Analysis.MinSeverity),
		MaxFileSize:    int64(s.cfg.Analysis.MaxFileSizeKB) * 1024,
	}
	options := []analysis.Option{analysis.WithLogger(s.log.WithPrefix("ENGINE"))}
	closeFn := func() {}

	if s.cfg.History.Enabled {
		store, err := openHistory(s.cfg)
		if err != nil {
			return nil, nil, err
		}
		s.history = store
		options = append(options, analysis.WithRecorder(store))
		closeFn = func() { _ = store.Close() }
	}

	return analysis.NewEngine(s.cache, s.client, opts, options...), closeFn, nil
}

// inspectConfig logs problems with the rulesets named in the project config.
func (s *session) inspectConfig() []projectconfig.Diagnostic {
	file, found, err := s.locator.Locate()
	if err != nil || !found {
		return nil
	}
	diags := projectconfig.Inspect(projectconfig.Parse(file.Text), s.cache)
	for _, d := range diags {
		s.log.Warn("%s:%d:%d: %s", filepath.Base(file.Path), d.Line, d.Column, d.Message)
	}
	return diags
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	if err := ensureDir(filepath.Dir(cfg.History.Path)); err != nil {
		return nil, err
	}
	store, err := history.NewStore(history.StoreConfig{Path: cfg.History.Path})
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return store, nil
}
