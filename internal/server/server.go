// ABOUTME: Server orchestrator that wires the store, relay manager, and HTTP surface
// ABOUTME: Manages component lifecycle, settings overrides, and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hookline/console/internal/api"
	"github.com/hookline/console/internal/auth"
	"github.com/hookline/console/internal/config"
	"github.com/hookline/console/internal/metrics"
	"github.com/hookline/console/internal/recorder"
	"github.com/hookline/console/internal/relay"
	"github.com/hookline/console/internal/store"
	"github.com/hookline/console/internal/webadmin"
)

const (
	shutdownTimeout  = 5 * time.Second
	statsSyncPeriod  = 15 * time.Second
	readHeaderBudget = 10 * time.Second

	// maintenancePeriod spaces the background sweeps that clear expired
	// admin sessions and purge delivery log entries past retention.
	maintenancePeriod = time.Hour
	// deliveryRetention is how long delivery log entries are kept.
	deliveryRetention = 30 * 24 * time.Hour
)

// Server orchestrates the hookline-console components: the SQLite store,
// the relay manager, the recorder, and the HTTP server carrying the JSON
// API, the admin console, and the metrics endpoint.
type Server struct {
	config     *config.Config
	store      *store.SQLiteStore
	manager    *relay.Manager
	heartbeat  *relay.Heartbeat
	recorder   *recorder.Recorder
	metrics    *metrics.Metrics
	webAdmin   *webadmin.Admin
	httpServer *http.Server
	logger     *slog.Logger

	metricsSubID uint64
	syncStop     chan struct{}
	syncDone     chan struct{}
	maintStop    chan struct{}
	maintDone    chan struct{}
}

// New builds a Server from configuration. Relay settings saved through the
// console override the config file values.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	relayCfg := relayConfigFromStore(context.Background(), cfg, st, logger)

	manager := relay.NewManager(relay.ManagerParams{
		Config: relayCfg,
		Logger: logger.With("component", "relay"),
	})

	s := &Server{
		config:    cfg,
		store:     st,
		manager:   manager,
		logger:    logger,
		syncStop:  make(chan struct{}),
		syncDone:  make(chan struct{}),
		maintStop: make(chan struct{}),
		maintDone: make(chan struct{}),
	}
	go s.maintenanceLoop()

	s.heartbeat = relay.NewHeartbeat(manager, logger.With("component", "heartbeat"))

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
		s.metricsSubID = manager.Subscribe(
			func(relay.Envelope) { s.metrics.ObserveFrame() },
			s.metrics.ObserveStatus,
		)
		go s.syncStatsLoop()
	} else {
		close(s.syncDone)
	}

	// The recorder tolerates a nil counter when metrics are off.
	var counter recorder.DeliveryCounter
	if s.metrics != nil {
		counter = s.metrics
	}
	s.recorder = recorder.New(manager, st, counter)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	api.New(manager, st).Register(mux, st, verifier)

	s.webAdmin = webadmin.New(st, manager, webadmin.Config{
		BaseURL: cfg.WebAdmin.BaseURL,
	})
	s.webAdmin.RegisterRoutes(mux)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/", http.StatusSeeOther)
	})

	var handler http.Handler = mux
	if s.metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, s.metrics.Handler())
		handler = s.metrics.HTTPMiddleware(mux)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderBudget,
	}

	return s, nil
}

// relayConfigFromStore merges the config file relay section with settings
// previously saved through the console. Saved settings win.
func relayConfigFromStore(ctx context.Context, cfg *config.Config, st *store.SQLiteStore, logger *slog.Logger) relay.Config {
	rc := relay.Config{
		Address:              cfg.Relay.Address,
		ReconnectInterval:    cfg.Relay.ReconnectInterval,
		MaxReconnectAttempts: cfg.Relay.MaxReconnectAttempts,
		Enabled:              cfg.Relay.Enabled,
	}

	if raw, err := st.GetSetting(ctx, webadmin.SettingReconnectInterval); err == nil {
		if d, err := time.ParseDuration(raw); err == nil {
			rc.ReconnectInterval = d
		} else {
			logger.Warn("ignoring saved reconnect interval", "value", raw, "error", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to load reconnect interval setting", "error", err)
	}

	if raw, err := st.GetSetting(ctx, webadmin.SettingMaxReconnects); err == nil {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			rc.MaxReconnectAttempts = n
		} else {
			logger.Warn("ignoring saved max reconnect attempts", "value", raw)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to load max reconnects setting", "error", err)
	}

	if raw, err := st.GetSetting(ctx, webadmin.SettingRelayEnabled); err == nil {
		rc.Enabled = raw == "true"
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to load relay enabled setting", "error", err)
	}

	return rc
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","relay":%q}`+"\n", s.manager.CurrentStatus())
}

// Manager exposes the relay manager, used by the CLI for direct control.
func (s *Server) Manager() *relay.Manager {
	return s.manager
}

// Run starts the HTTP server and, when the relay is enabled, kicks off the
// first connection attempt. Blocks until the context is canceled or the
// server fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.manager.CurrentConfig().Enabled {
		if err := s.manager.Connect(); err != nil && !errors.Is(err, relay.ErrDisabled) {
			s.logger.Warn("initial relay connect failed", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// syncStatsLoop periodically copies manager counters into the Prometheus
// collectors. Counters the manager resets are handled by SyncStats itself.
func (s *Server) syncStatsLoop() {
	defer close(s.syncDone)

	ticker := time.NewTicker(statsSyncPeriod)
	defer ticker.Stop()

	prev := s.manager.Stats()
	for {
		select {
		case <-s.syncStop:
			return
		case <-ticker.C:
			cur := s.manager.Stats()
			s.metrics.SyncStats(prev, cur)
			prev = cur
		}
	}
}

// maintenanceLoop periodically clears expired admin sessions and purges
// delivery log entries older than the retention window.
func (s *Server) maintenanceLoop() {
	defer close(s.maintDone)

	ticker := time.NewTicker(maintenancePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.maintStop:
			return
		case <-ticker.C:
			s.runMaintenance(context.Background())
		}
	}
}

func (s *Server) runMaintenance(ctx context.Context) {
	if err := s.store.DeleteExpiredAdminSessions(ctx); err != nil {
		s.logger.Error("failed to clear expired admin sessions", "error", err)
	}

	purged, err := s.store.PurgeDeliveries(ctx, time.Now().Add(-deliveryRetention))
	if err != nil {
		s.logger.Error("failed to purge old deliveries", "error", err)
		return
	}
	if purged > 0 {
		s.logger.Info("purged old deliveries", "count", purged)
	}
}

// gracefulShutdown stops with a fresh context since the run context is
// already canceled by the time we get here.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server, detaches subscribers, closes the relay
// manager, and finally closes the store. Collects every error.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	close(s.syncStop)
	<-s.syncDone
	close(s.maintStop)
	<-s.maintDone

	s.recorder.Stop(s.manager)
	s.heartbeat.Stop()
	if s.metrics != nil {
		s.manager.Unsubscribe(s.metricsSubID)
	}
	s.manager.Close()

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("shutdown complete")
	return nil
}
