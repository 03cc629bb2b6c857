// gotpd is the daemon that runs a J1939-21 transport-protocol engine against
// a CAN bus and exposes an administrative HTTP API and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gotpd/internal/candrv"
	"github.com/dantte-lp/gotpd/internal/config"
	tpmetrics "github.com/dantte-lp/gotpd/internal/metrics"
	"github.com/dantte-lp/gotpd/internal/server"
	"github.com/dantte-lp/gotpd/internal/tp"
	appversion "github.com/dantte-lp/gotpd/internal/version"
)

// shutdownTimeout is the maximum time to wait for the admin and metrics
// HTTP servers to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("invalid configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("gotpd starting",
		slog.String("version", appversion.Version),
		slog.String("can_interface", cfg.CAN.Interface),
		slog.String("control_addr", cfg.Control.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := tpmetrics.NewCollector(reg)

	bus, err := candrv.NewSocketCANBus(cfg.CAN.Interface)
	if err != nil {
		logger.Error("failed to open CAN bus", slog.String("error", err.Error()))
		return 1
	}
	defer closeBus(bus, logger)

	myAddr := tp.Address(cfg.CAN.SourceAddress)
	var lastDelivery atomic.Pointer[deliveredMessage]

	engine := tp.NewEngine(tp.Collaborators{
		CanTx:     func(id uint32, data [8]byte) error { return bus.Send(id, data) },
		NowMs:     nowMsFunc(),
		MyAddress: func() tp.Address { return myAddr },
		Deliver: func(pgn tp.PGN, src tp.Address, data []byte) {
			lastDelivery.Store(&deliveredMessage{PGN: pgn, Src: src, Data: data})
			logger.Info("message reassembled",
				slog.Uint64("pgn", uint64(pgn)), slog.Int("src", int(src)), slog.Int("bytes", len(data)))
		},
	}, tp.Options{
		Logger:           logger,
		Metrics:          collector,
		DefaultMaxPerCTS: cfg.TP.MaxPerCTS,
		MaxSessions:      cfg.TP.MaxSessions,
		Tbam:             cfg.TbamDuration(),
		ThInterval:       cfg.ThDuration(),
	})

	if err := runServers(cfg, engine, bus, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("gotpd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("gotpd stopped")
	return 0
}

// deliveredMessage records the most recently reassembled message. The
// Deliver callback stores it on every delivery; nothing in the daemon reads
// it back, and the admin API does not expose payload bytes.
type deliveredMessage struct {
	PGN  tp.PGN
	Src  tp.Address
	Data []byte
}

func runServers(
	cfg *config.Config,
	engine *tp.Engine,
	bus candrv.Bus,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := newAdminServer(cfg.Control, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runCANReceiveLoop(gCtx, bus, engine, logger)
	})
	g.Go(func() error {
		return runPollLoop(gCtx, engine, cfg.Tick.IntervalMs)
	})

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runCANReceiveLoop feeds every frame arriving on the bus into the engine.
// OnFrame silently ignores frames whose PGN is not TP.CM/TP.DT or whose
// destination is neither this node nor the broadcast address, so no
// filtering is needed here.
func runCANReceiveLoop(ctx context.Context, bus candrv.Bus, engine *tp.Engine, logger *slog.Logger) error {
	for {
		frame, err := bus.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, candrv.ErrClosed) {
				return nil
			}
			logger.Warn("CAN receive error", slog.String("error", err.Error()))
			continue
		}
		engine.OnFrame(frame.ID, frame.Data)
	}
}

// runPollLoop drives the engine's timer service at a fixed tick, the same
// cooperative-polling model the engine's Poll doc comment describes: no
// goroutine blocks inside the engine, a ticker just calls in periodically.
func runPollLoop(ctx context.Context, engine *tp.Engine, intervalMs int) error {
	interval := time.Duration(intervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			engine.Poll(uint32(time.Since(start).Milliseconds()))
		}
	}
}

// nowMsFunc returns a monotonic millisecond clock anchored at process start,
// matching the timestamp domain runPollLoop feeds into Poll.
func nowMsFunc() func() uint32 {
	start := time.Now()
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Control.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Control.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP reload — log level only; the engine's own session/timer state is
// not reconciled against config because it is runtime, not declarative.
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadLogLevel(configPath, logLevel, logger)
		}
	}
}

func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()), slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func closeBus(bus candrv.Bus, logger *slog.Logger) {
	if err := bus.Close(); err != nil {
		logger.Warn("failed to close CAN bus", slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// Server setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newAdminServer(cfg config.ControlConfig, engine *tp.Engine, logger *slog.Logger) *http.Server {
	handler := server.RecoveryMiddleware(logger)(server.LoggingMiddleware(logger)(server.New(engine, logger)))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
