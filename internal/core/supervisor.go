package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allaspectsdev/aw-firewall/internal/config"
	"github.com/allaspectsdev/aw-firewall/internal/logging"
	"github.com/allaspectsdev/aw-firewall/internal/provider"
	"github.com/allaspectsdev/aw-firewall/internal/ratelimit"
	"github.com/allaspectsdev/aw-firewall/internal/tracing"
	"github.com/allaspectsdev/aw-firewall/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Supervisor owns the process lifecycle: it holds the Core and the
// resolved topology, and starts/stops one net/http.Server per provider
// listener.
type Supervisor struct {
	Core     *Core
	Topology *config.Topology
	logger   *logging.Logger
	servers  []*http.Server
}

// Run resolves configuration, builds Core, starts every enabled provider
// listener (plus the always-on OpenAI management listener), and blocks
// until SIGTERM/SIGINT. It logs "shutdown" and returns nil on a clean
// signal-triggered exit.
func Run(ctx context.Context) error {
	top, topIssues := config.LoadTopology()
	runtime, runtimeIssues := config.LoadRuntime("")

	logger := logging.New(os.Stdout, runtime.LogLevel)
	for _, msg := range topIssues {
		logger.Warn("startup", logging.Fields{"issue": msg})
	}
	for _, msg := range runtimeIssues {
		logger.Warn("startup", logging.Fields{"issue": msg})
	}
	if top.UpstreamHTTP == "" {
		logger.Warn("startup", logging.Fields{"issue": "no upstream proxy configured, connecting to providers directly"})
	}

	tracingOn := runtime.Trace.Exporter != ""
	if tracingOn {
		shutdownTracing, err := tracing.Init(ctx, "aw-firewall", version.Version, runtime.Trace.Exporter, runtime.Trace.Endpoint, runtime.Trace.SampleRate, true)
		if err != nil {
			logger.Warn("startup", logging.Fields{"issue": fmt.Sprintf("tracing disabled: %v", err)})
			tracingOn = false
		} else {
			defer shutdownTracing(context.Background())
		}
	}

	limiter := ratelimit.New(top.RateLimitForAll())
	c, err := New(logger, limiter, tracingOn, top.UpstreamHTTP)
	if err != nil {
		return fmt.Errorf("building core: %w", err)
	}

	sup := &Supervisor{Core: c, Topology: top, logger: logger}

	watcher, err := config.WatchRuntime("", func(rc *config.RuntimeConfig) {
		logger.SetLevel(rc.LogLevel)
	})
	if err == nil && watcher != nil {
		defer watcher.Close()
	}

	for _, id := range []provider.ID{provider.OpenAI, provider.Anthropic, provider.Copilot} {
		cfg := top.Providers[id]
		if id != provider.OpenAI && !cfg.Enabled {
			continue
		}
		sup.startListener(cfg)
	}

	logger.Info("startup", logging.Fields{"version": version.Version})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Info("shutdown", logging.Fields{})
	sup.shutdown()
	return nil
}

func (s *Supervisor) startListener(p provider.Config) {
	router := NewProviderRouter(s.Core, s.Topology, p)
	addr := fmt.Sprintf(":%d", p.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.servers = append(s.servers, srv)

	go func() {
		s.logger.Info("server_start", logging.Fields{"provider": string(p.ID), "addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server_error", logging.Fields{"provider": string(p.ID), "error": err.Error()})
		}
	}()
}

func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range s.servers {
		_ = srv.Shutdown(ctx)
	}
}
