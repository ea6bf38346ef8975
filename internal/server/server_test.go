// ABOUTME: Tests for server wiring, health endpoint, and settings overrides.
// ABOUTME: Uses a temp SQLite database and a disabled relay so nothing dials out.

package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hookline/console/internal/config"
	"github.com/hookline/console/internal/store"
	"github.com/hookline/console/internal/webadmin"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")},
		Relay: config.RelayConfig{
			Address:              "ws://127.0.0.1:1/relay",
			ReconnectInterval:    time.Second,
			MaxReconnectAttempts: 3,
			Enabled:              false,
		},
		Auth:     config.AuthConfig{JWTSecret: "test-secret"},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		WebAdmin: config.WebAdminConfig{BaseURL: "http://localhost:8080"},
	}
}

func TestNewAndShutdown(t *testing.T) {
	srv, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("unexpected health body: %s", body)
	}
	if !strings.Contains(body, `"relay":"idle"`) {
		t.Fatalf("expected idle relay in health body: %s", body)
	}
}

func TestMetricsEndpointRegistered(t *testing.T) {
	srv, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hookline_relay_status") {
		t.Fatal("expected relay status gauge in metrics output")
	}
}

func TestSavedSettingsOverrideConfig(t *testing.T) {
	cfg := testConfig(t)

	// Seed settings as the console settings form would.
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	ctx := context.Background()
	if err := st.PutSetting(ctx, webadmin.SettingReconnectInterval, "30s"); err != nil {
		t.Fatalf("failed to save setting: %v", err)
	}
	if err := st.PutSetting(ctx, webadmin.SettingMaxReconnects, "9"); err != nil {
		t.Fatalf("failed to save setting: %v", err)
	}
	if err := st.PutSetting(ctx, webadmin.SettingRelayEnabled, "false"); err != nil {
		t.Fatalf("failed to save setting: %v", err)
	}
	st.Close()

	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	got := srv.Manager().CurrentConfig()
	if got.ReconnectInterval != 30*time.Second {
		t.Fatalf("reconnect interval = %v, want 30s", got.ReconnectInterval)
	}
	if got.MaxReconnectAttempts != 9 {
		t.Fatalf("max reconnect attempts = %d, want 9", got.MaxReconnectAttempts)
	}
	if got.Enabled {
		t.Fatal("relay should be disabled by saved setting")
	}
}

func TestSavedSettingsIgnoreMalformedValues(t *testing.T) {
	cfg := testConfig(t)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	ctx := context.Background()
	if err := st.PutSetting(ctx, webadmin.SettingReconnectInterval, "garbage"); err != nil {
		t.Fatalf("failed to save setting: %v", err)
	}
	st.Close()

	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	got := srv.Manager().CurrentConfig()
	if got.ReconnectInterval != time.Second {
		t.Fatalf("reconnect interval = %v, want config value 1s", got.ReconnectInterval)
	}
}

func TestMaintenanceSweep(t *testing.T) {
	srv, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	ctx := context.Background()
	now := time.Now().UTC()

	if err := srv.store.InsertDelivery(ctx, &store.Delivery{
		EventType: "ancient", Status: store.DeliveryReceived,
		CreatedAt: now.Add(-deliveryRetention - time.Hour),
	}); err != nil {
		t.Fatalf("failed to insert delivery: %v", err)
	}
	if err := srv.store.InsertDelivery(ctx, &store.Delivery{
		EventType: "fresh", Status: store.DeliveryReceived, CreatedAt: now,
	}); err != nil {
		t.Fatalf("failed to insert delivery: %v", err)
	}

	user := &store.AdminUser{ID: "user-1", Username: "alice", PasswordHash: "x"}
	if err := srv.store.CreateAdminUser(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if err := srv.store.CreateAdminSession(ctx, &store.AdminSession{
		ID: "sess-expired", UserID: user.ID,
		CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	srv.runMaintenance(ctx)

	deliveries, err := srv.store.ListDeliveries(ctx, store.DeliveryFilter{})
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].EventType != "fresh" {
		t.Fatalf("expected only the fresh delivery to survive, got %d", len(deliveries))
	}

	if _, err := srv.store.GetAdminSession(ctx, "sess-expired"); err == nil {
		t.Fatal("expected expired session to be gone")
	}
}
