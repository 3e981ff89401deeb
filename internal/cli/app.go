package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/toolhost/internal/config"
	"github.com/harun/toolhost/internal/logger"
	"github.com/harun/toolhost/internal/metrics"
	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/registry"
	"github.com/harun/toolhost/tools/mcpproxy"
)

// app is the wiring shared by every command: configuration, logging,
// metrics and a registry populated from the catalog.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	catalog  *catalog.Catalog
	registry *registry.Registry
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,

		RedactPatterns: cfg.Logging.RedactPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := lg.GetZerolog()

	m := metrics.NewMetrics()

	discoverer, err := catalog.NewDiscoverer(zl, catalog.WithFailureHook(m.DiscoveryFailed))
	if err != nil {
		lg.Close()
		return nil, err
	}
	c := catalog.New(cfg.Tools.Dir, discoverer, zl)

	reg := registry.New(c, zl,
		registry.WithObserver(m),
		registry.WithDisabled(cfg.Tools.Disabled...),
	)
	if err := reg.InitializeDefaultTools(ctx); err != nil {
		lg.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      lg,
		logger:   zl,
		metrics:  m,
		catalog:  c,
		registry: reg,
	}, nil
}

// Close stops proxied MCP servers and closes the log file.
func (a *app) Close() {
	mcpproxy.Shutdown()
	if err := a.log.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close log file")
	}
}
