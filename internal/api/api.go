// ABOUTME: Authenticated JSON API for relay status, deliveries, and test sends
// ABOUTME: Served under /api/v1 with bearer JWT auth

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hookline/console/internal/auth"
	"github.com/hookline/console/internal/relay"
	"github.com/hookline/console/internal/store"
)

// API serves the machine-facing JSON endpoints.
type API struct {
	manager    *relay.Manager
	deliveries store.DeliveryStore
	logger     *slog.Logger
}

// New creates the API handler group.
func New(manager *relay.Manager, deliveries store.DeliveryStore) *API {
	return &API{
		manager:    manager,
		deliveries: deliveries,
		logger:     slog.Default().With("component", "api"),
	}
}

// Register mounts the API routes on the mux, wrapped in JWT auth.
func (a *API) Register(mux *http.ServeMux, keys store.KeyStore, verifier auth.TokenVerifier) {
	authed := auth.HTTPAuthMiddleware(keys, verifier)
	mux.Handle("GET /api/v1/status", authed(http.HandlerFunc(a.handleStatus)))
	mux.Handle("GET /api/v1/deliveries", authed(http.HandlerFunc(a.handleDeliveries)))
	mux.Handle("POST /api/v1/test", authed(http.HandlerFunc(a.handleTest)))
}

type statusResponse struct {
	Status          string `json:"status"`
	LastMessageType string `json:"last_message_type,omitempty"`
	Dials           uint64 `json:"dials"`
	FramesIn        uint64 `json:"frames_in"`
	DroppedSends    uint64 `json:"dropped_sends"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := a.manager.Stats()
	resp := statusResponse{
		Status:       a.manager.CurrentStatus().String(),
		Dials:        stats.Dials,
		FramesIn:     stats.FramesIn,
		DroppedSends: stats.DroppedSends,
	}
	if last, ok := a.manager.LastMessage(); ok {
		resp.LastMessageType = last.Type
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type deliveryResponse struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id,omitempty"`
	EventType  string    `json:"event_type"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *API) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	filter := store.DeliveryFilter{
		EndpointID: r.URL.Query().Get("endpoint_id"),
		Status:     r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	deliveries, err := a.deliveries.ListDeliveries(r.Context(), filter)
	if err != nil {
		a.logger.Error("listing deliveries", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		resp = append(resp, deliveryResponse{
			ID:         d.ID,
			EndpointID: d.EndpointID,
			EventType:  d.EventType,
			Status:     d.Status,
			CreatedAt:  d.CreatedAt,
		})
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"deliveries": resp})
}

type testRequest struct {
	EventType string          `json:"event_type"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// handleTest injects a synthetic webhook envelope through the relay so
// operators can verify the channel end to end.
func (a *API) handleTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EventType == "" {
		a.writeError(w, http.StatusBadRequest, "event_type required")
		return
	}

	authCtx := auth.FromContext(r.Context())
	env, err := relay.NewEnvelope(relay.TypeWebhook, map[string]any{
		"event_type": req.EventType,
		"body":       req.Body,
		"test":       true,
		"sent_by":    authCtx.KeyName,
	})
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "could not encode envelope")
		return
	}

	if err := a.manager.Send(env); err != nil {
		if errors.Is(err, relay.ErrNotConnected) {
			a.writeError(w, http.StatusConflict, "relay not connected")
			return
		}
		a.logger.Error("test send failed", "error", err)
		a.writeError(w, http.StatusInternalServerError, "send failed")
		return
	}

	a.writeJSON(w, http.StatusAccepted, map[string]string{"result": "sent"})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encoding response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
