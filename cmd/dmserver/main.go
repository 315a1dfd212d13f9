// dmserver serves the game over HTTP and websockets.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"dungeonmaster/internal/app"
	"dungeonmaster/pkg/config"
	"dungeonmaster/pkg/logx"
	"dungeonmaster/pkg/server"
	"dungeonmaster/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dmserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr, dbPath string
	var showVersion bool

	flags := pflag.NewFlagSet("dmserver", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML config (env and defaults otherwise)")
	flags.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	flags.StringVar(&dbPath, "db", "", "sqlite database path (overrides database.path)")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err //nolint:wrapcheck // pflag errors are user-facing
	}
	if showVersion {
		fmt.Println(version.String("dmserver"))
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err //nolint:wrapcheck // already describes the failure
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	a, err := app.Setup(cfg)
	if err != nil {
		return err //nolint:wrapcheck // already describes the failure
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "dmserver: close: %v\n", err)
		}
	}()

	logger := logx.NewLogger("dmserver")
	srv := server.New(a.Game,
		server.WithMetricsHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})),
		server.WithHealth(a.Clients.Health),
	)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down (timeout %s)", cfg.Server.ShutdownTimeout)
	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
