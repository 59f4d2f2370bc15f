// Package app wires together the pieces a running poseidond process
// needs: configuration, logging, the persistence daemon, and the
// netcore-backed HTTP listener, and owns graceful shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poseidon/poseidon/config"
	"github.com/poseidon/poseidon/core/pools"
	"github.com/poseidon/poseidon/httpserver"
	"github.com/poseidon/poseidon/logging"
	"github.com/poseidon/poseidon/persistence"
)

// App owns the process's long-lived collaborators and the stop
// channel that ties their shutdown together.
type App struct {
	cfg *config.Config
	mgr *config.Manager

	jobs   *pools.WorkerPool
	daemon *persistence.Daemon
	mux    *httpserver.Mux
	server *httpserver.Server

	stop chan struct{}
	done chan struct{}
}

// New builds an App from a loaded Config/Manager pair (see
// config.Bootstrap) and an HTTP Mux whose servlets the caller has
// already registered.
func New(cfg *config.Config, mgr *config.Manager, mux *httpserver.Mux) (*App, error) {
	switch cfg.Env {
	case "production":
		pools.OptimizeForHighThroughput()
	case "staging":
		pools.OptimizeForLowLatency()
	default:
		pools.ApplyGCConfig(pools.DefaultGCConfig())
	}

	mux.Monitor().SetEnabled(cfg.MetricsEnabled)
	mgr.Watch("metrics_enabled", func(_ string, value interface{}) {
		if enabled, ok := value.(bool); ok {
			mux.Monitor().SetEnabled(enabled)
			logging.Info("poseidon: metrics_enabled changed live", "enabled", enabled)
		}
	})

	jobs := pools.NewWorkerPool(0)
	daemon := persistence.New(mgr, jobs)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server, err := httpserver.NewServer(addr, nil, mux)
	if err != nil {
		return nil, fmt.Errorf("app: failed to bind %s: %w", addr, err)
	}

	return &App{
		cfg:    cfg,
		mgr:    mgr,
		jobs:   jobs,
		daemon: daemon,
		mux:    mux,
		server: server,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Mux exposes the HTTP mux for servlet registration before Run.
func (a *App) Mux() *httpserver.Mux { return a.mux }

// Daemon exposes the persistence daemon, e.g. for PendForSaving calls
// from servlet handlers.
func (a *App) Daemon() *persistence.Daemon { return a.daemon }

// Run starts the persistence daemon and the HTTP listener, then
// blocks until a termination signal arrives and shutdown completes.
func (a *App) Run() error {
	a.daemon.Start()

	go func() {
		logging.Info("poseidon: http listener starting", "addr", fmt.Sprintf(":%d", a.cfg.Port), "env", a.cfg.Env)
		if err := a.server.Serve(a.stop); err != nil {
			logging.Error("poseidon: http listener exited", "err", err)
		}
		close(a.done)
	}()

	a.awaitSignal()
	return a.shutdown()
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logging.Info("poseidon: signal received, shutting down", "signal", sig.String())
}

// shutdown stops accepting new connections, lets the persistence
// daemon flush everything pending (including the spool, if a spool
// path is configured), then tears down the worker pool.
func (a *App) shutdown() error {
	close(a.stop)

	select {
	case <-a.done:
	case <-time.After(10 * time.Second):
		logging.Warning("poseidon: http listener did not stop within the grace period")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.daemon.FlushAndWait(ctx); err != nil {
		logging.Warning("poseidon: persistence flush did not complete cleanly", "err", err)
	}

	a.daemon.Stop()
	a.jobs.Close()
	return nil
}
