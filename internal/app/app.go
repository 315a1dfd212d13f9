// Package app assembles the process-wide collaborators shared by the binaries.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dungeonmaster/pkg/agent"
	"dungeonmaster/pkg/agent/middleware/metrics"
	"dungeonmaster/pkg/config"
	"dungeonmaster/pkg/eventlog"
	"dungeonmaster/pkg/game"
	"dungeonmaster/pkg/logx"
	"dungeonmaster/pkg/persistence"
)

// App holds everything a binary needs to run the game.
type App struct {
	Config   *config.Config
	Store    *persistence.Store
	Events   *eventlog.Recorder
	Registry *prometheus.Registry
	Clients  *agent.LLMClientFactory
	Game     *game.Service
}

// Setup configures logging, opens storage and the event log, and builds the
// game service. Close releases what Setup opened.
func Setup(cfg *config.Config) (*App, error) {
	if err := logx.Configure(logx.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
		Domains:     cfg.Logging.Domains,
	}); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		return nil, err //nolint:wrapcheck // already describes the failure
	}

	events, err := eventlog.NewRecorder(cfg.EventLog.Dir, cfg.EventLog.EvalLogging)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder := metrics.NewPrometheusRecorder(reg)
	clients := agent.NewLLMClientFactory(cfg, recorder)
	svc, err := game.Build(cfg, game.Deps{
		Store:   store,
		Events:  events,
		Metrics: recorder,
		Factory: clients,
	})
	if err != nil {
		_ = events.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build game: %w", err)
	}

	logx.Infof("database %s, event log %s", cfg.Database.Path, events.EventsFile())
	return &App{Config: cfg, Store: store, Events: events, Registry: reg, Clients: clients, Game: svc}, nil
}

// Close flushes logs and closes storage.
func (a *App) Close() error {
	err := errors.Join(a.Events.Close(), a.Store.Close())
	logx.Sync()
	return err
}
