package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skycode/skypanel/backup"
	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/filelock"
	"github.com/skycode/skypanel/guard"
	"github.com/skycode/skypanel/internal"
	"github.com/skycode/skypanel/server"
)

const quietConsoleLevel = "warn"

// app wires the immutable config into every component once per invocation.
type app struct {
	cfg        config.Config
	log        *internal.Logger
	logger     *zap.SugaredLogger
	registry   *prometheus.Registry
	guard      *guard.Guard
	serializer *filelock.Serializer
	backups    *backup.Manager
}

func newConfigManager() *config.Manager {
	store := config.New().WithConfigPath(viper.GetString(flagConfig))
	return config.NewManager(store).WithEnvironment()
}

// newApp loads the config and builds the components. One-shot commands keep the
// console quiet below warnings so their stdout stays machine readable.
func newApp(verbose bool) (*app, error) {
	cfg, err := newConfigManager().Load()
	if err != nil {
		return nil, err
	}

	consoleLevel := cfg.LogLevel
	if !verbose {
		consoleLevel = quietConsoleLevel
	}
	if debugMode {
		consoleLevel = "debug"
	}

	log, err := internal.NewLogger(consoleLevel, cfg.LogLevel, cfg.LogDir)
	if err != nil && !verbose && cfg.LogDir != "" {
		// one-shot commands must not depend on a writable log directory
		fileErr := err
		if log, err = internal.NewLogger(consoleLevel, cfg.LogLevel, ""); err == nil {
			log.Sugar().Warnw("file logging disabled", "log_dir", cfg.LogDir, "error", fileErr)
		}
	}
	if err != nil {
		return nil, err
	}
	logger := log.Sugar()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := internal.NewMetrics(registry)

	g := guard.New(cfg)

	return &app{
		cfg:        cfg,
		log:        log,
		logger:     logger,
		registry:   registry,
		guard:      g,
		serializer: filelock.New(cfg).WithLogger(logger).WithMetrics(metrics),
		backups:    backup.New(cfg, g).WithLogger(logger).WithMetrics(metrics),
	}, nil
}

func (a *app) server() *server.Server {
	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.New(a.cfg, a.guard).
		WithLogger(a.logger).
		WithGatherer(a.registry).
		WithVersion(versionString())
}

func (a *app) close() {
	a.log.Close()
}
