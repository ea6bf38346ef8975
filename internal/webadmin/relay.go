// ABOUTME: Console handlers for the relay channel page and its controls
// ABOUTME: Connect/disconnect/reconnect actions plus an SSE status stream

package webadmin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hookline/console/internal/config"
	"github.com/hookline/console/internal/relay"
)

// Settings keys for console-editable relay configuration.
const (
	SettingReconnectInterval = "relay.reconnect_interval"
	SettingMaxReconnects     = "relay.max_reconnect_attempts"
	SettingRelayEnabled      = "relay.enabled"
)

// handleRelayPage renders the relay channel page
func (a *Admin) handleRelayPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)

	stats := a.manager.Stats()
	data := relayPageData{
		Title:     "Relay",
		User:      user,
		CSRFToken: csrfToken,
		Status:    a.manager.CurrentStatus().String(),
		Stats:     stats,
	}
	if last, ok := a.manager.LastMessage(); ok {
		data.LastMessageType = last.Type
	}

	a.renderRelayPage(w, data)
}

// handleRelayStatus returns the current status badge (htmx partial)
func (a *Admin) handleRelayStatus(w http.ResponseWriter, r *http.Request) {
	a.renderRelayStatusBadge(w, a.manager.CurrentStatus().String())
}

// handleRelayStream streams status transitions as server-sent events.
// The subscription lives until the client goes away.
func (a *Admin) handleRelayStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan relay.Status, 16)
	subID := a.manager.Subscribe(nil, func(s relay.Status) {
		select {
		case events <- s:
		default:
		}
	})
	defer a.manager.Unsubscribe(subID)

	// Send the current status immediately so the page never shows stale state.
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", a.manager.CurrentStatus())
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-events:
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", s)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleRelayConnect starts a connection attempt
func (a *Admin) handleRelayConnect(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	if err := a.manager.Connect(); err != nil {
		if errors.Is(err, relay.ErrDisabled) {
			http.Error(w, "Relay is disabled in settings", http.StatusConflict)
			return
		}
		a.logger.Error("connect failed", "error", err)
		http.Error(w, "Connect failed", http.StatusInternalServerError)
		return
	}

	a.logger.Info("relay connect requested", "user", getUserFromContext(r).Username)
	a.renderRelayStatusBadge(w, a.manager.CurrentStatus().String())
}

// handleRelayDisconnect closes the channel and suppresses reconnects
func (a *Admin) handleRelayDisconnect(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	a.manager.Disconnect()
	a.logger.Info("relay disconnect requested", "user", getUserFromContext(r).Username)
	a.renderRelayStatusBadge(w, a.manager.CurrentStatus().String())
}

// handleRelayReconnect tears down and redials from a clean slate
func (a *Admin) handleRelayReconnect(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	a.manager.Reconnect()
	a.logger.Info("relay reconnect requested", "user", getUserFromContext(r).Username)
	a.renderRelayStatusBadge(w, a.manager.CurrentStatus().String())
}

// handleSettingsPage renders the relay settings form
func (a *Admin) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)

	cfg := a.manager.CurrentConfig()
	a.renderSettingsPage(w, settingsPageData{
		Title:             "Settings",
		User:              user,
		CSRFToken:         csrfToken,
		ReconnectInterval: cfg.ReconnectInterval.String(),
		MaxReconnects:     cfg.MaxReconnectAttempts,
		Enabled:           cfg.Enabled,
	})
}

// handleSettingsSave validates the form, persists the settings, and applies
// them to the live manager.
func (a *Admin) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	user := getUserFromContext(r)
	renderError := func(msg string) {
		cfg := a.manager.CurrentConfig()
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderSettingsPage(w, settingsPageData{
			Title:             "Settings",
			User:              user,
			CSRFToken:         csrfToken,
			Error:             msg,
			ReconnectInterval: cfg.ReconnectInterval.String(),
			MaxReconnects:     cfg.MaxReconnectAttempts,
			Enabled:           cfg.Enabled,
		})
	}

	interval, err := time.ParseDuration(r.FormValue("reconnect_interval"))
	if err != nil {
		renderError("Invalid reconnect interval, use a duration like 5s or 1m")
		return
	}
	if interval < config.MinReconnectInterval || interval > config.MaxReconnectInterval {
		renderError(fmt.Sprintf("Reconnect interval must be between %s and %s",
			config.MinReconnectInterval, config.MaxReconnectInterval))
		return
	}

	maxAttempts, err := strconv.Atoi(r.FormValue("max_reconnect_attempts"))
	if err != nil || maxAttempts < 1 {
		renderError("Max reconnect attempts must be a positive number")
		return
	}

	enabled := r.FormValue("enabled") == "on"

	ctx := r.Context()
	if err := a.store.PutSetting(ctx, SettingReconnectInterval, interval.String()); err != nil {
		a.logger.Error("failed to save setting", "error", err)
		renderError("Failed to save settings")
		return
	}
	if err := a.store.PutSetting(ctx, SettingMaxReconnects, strconv.Itoa(maxAttempts)); err != nil {
		a.logger.Error("failed to save setting", "error", err)
		renderError("Failed to save settings")
		return
	}
	if err := a.store.PutSetting(ctx, SettingRelayEnabled, strconv.FormatBool(enabled)); err != nil {
		a.logger.Error("failed to save setting", "error", err)
		renderError("Failed to save settings")
		return
	}

	a.manager.ApplySettings(interval, maxAttempts, enabled)
	a.logger.Info("relay settings updated",
		"user", user.Username,
		"interval", interval,
		"max_attempts", maxAttempts,
		"enabled", enabled)

	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderSettingsPage(w, settingsPageData{
		Title:             "Settings",
		User:              user,
		CSRFToken:         csrfToken,
		Saved:             true,
		ReconnectInterval: interval.String(),
		MaxReconnects:     maxAttempts,
		Enabled:           enabled,
	})
}
