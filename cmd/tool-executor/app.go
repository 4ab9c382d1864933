package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/backend/stdio"
	"github.com/elb-pr/claudikins-tool-executor/catalog"
	"github.com/elb-pr/claudikins-tool-executor/config"
	"github.com/elb-pr/claudikins-tool-executor/exec"
	"github.com/elb-pr/claudikins-tool-executor/metrics"
	"github.com/elb-pr/claudikins-tool-executor/runtime/jsengine"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

const shutdownTimeout = 10 * time.Second

// app is the fully wired gateway for one process.
type app struct {
	logger  *zap.Logger
	metrics *metrics.Recorder
	config  config.Config
	exec    *exec.Exec
}

// newLogger builds a production logger on stderr; stdout carries the MCP
// stream.
func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
}

func loadServers(s settings, logger *zap.Logger) (config.Config, error) {
	home, _ := os.UserHomeDir()
	return config.Load(afero.NewOsFs(), config.LoadOptions{
		Path:    s.ConfigPath,
		HomeDir: home,
		Logger:  logger,
	})
}

func loadCatalog(dir string, logger *zap.Logger) (*catalog.Catalog, error) {
	fs := afero.NewOsFs()
	defs, err := catalog.LoadDir(fs, dir, logger)
	if err != nil {
		if ok, _ := afero.DirExists(fs, dir); ok {
			return nil, err
		}
		logger.Warn("tool registry not found, search will return no results", zap.String("path", dir))
		defs = nil
	}
	return catalog.New(defs, catalog.Options{Logger: logger})
}

func newApp(s settings) (*app, error) {
	logger, err := newLogger(s.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadServers(s, logger)
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog(s.Registry, logger)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.New(s.Workspace)
	if err != nil {
		return nil, err
	}

	var rec *metrics.Recorder
	if s.MetricsListen != "" {
		rec = metrics.New()
	}
	reg, err := backend.NewRegistry(cfg.Servers...)
	if err != nil {
		return nil, err
	}
	broker, err := backend.NewBroker(backend.BrokerConfig{
		Registry:       reg,
		Factory:        stdio.Factory(stdio.Options{Logger: logger}),
		IdleTimeout:    s.IdleTimeout,
		SweepInterval:  s.SweepInterval,
		ConnectTimeout: s.ConnectTimeout,
		Logger:         logger,
		Metrics:        rec,
	})
	if err != nil {
		return nil, err
	}
	ex, err := exec.New(exec.Options{
		Catalog:        cat,
		Broker:         broker,
		Engine:         jsengine.New(jsengine.Config{Logger: logger}),
		Workspace:      ws,
		Auditor:        audit.New(audit.DefaultCapacity),
		MaxLogChars:    s.MaxLogChars,
		MaxResultChars: s.MaxResultChars,
		Logger:         logger,
		Metrics:        rec,
	})
	if err != nil {
		return nil, err
	}
	return &app{logger: logger, metrics: rec, config: cfg, exec: ex}, nil
}

// start launches the idle sweep and, when configured, the metrics listener.
func (a *app) start(ctx context.Context, metricsAddr string) {
	a.exec.Broker().Start(ctx)
	if a.metrics == nil {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, metricsAddr, a.logger); err != nil {
			a.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}

// close stops the sweep and disconnects every service.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.exec.Shutdown(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	_ = a.logger.Sync()
	return err
}
