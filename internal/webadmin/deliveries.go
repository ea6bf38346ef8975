// ABOUTME: Console handlers for the delivery log viewer
// ABOUTME: Filterable by endpoint and status via htmx partial reloads

package webadmin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hookline/console/internal/store"
)

const deliveriesPageSize = 50

// handleDeliveriesPage renders the delivery log page
func (a *Admin) handleDeliveriesPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)

	endpoints, err := a.store.ListEndpoints(r.Context())
	if err != nil {
		a.logger.Error("failed to list endpoints", "error", err)
	}

	a.renderDeliveriesPage(w, deliveriesPageData{
		Title:     "Deliveries",
		User:      user,
		CSRFToken: csrfToken,
		Endpoints: endpoints,
	})
}

// handleDeliveryDetail renders a single delivery with its full payload
func (a *Admin) handleDeliveryDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := a.store.GetDelivery(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Delivery not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to get delivery", "error", err, "id", id)
		http.Error(w, "Failed to load delivery", http.StatusInternalServerError)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)
	data := deliveryDetailData{
		Title:     "Delivery",
		User:      getUserFromContext(r),
		CSRFToken: csrfToken,
		Delivery:  d,
		Payload:   d.Payload,
	}
	if d.EndpointID != "" {
		ep, err := a.store.GetEndpoint(r.Context(), d.EndpointID)
		if err == nil {
			data.Endpoint = ep
		} else if !errors.Is(err, store.ErrNotFound) {
			a.logger.Error("failed to get endpoint", "error", err, "id", d.EndpointID)
		}
	}
	if pretty, err := json.MarshalIndent(json.RawMessage(d.Payload), "", "  "); err == nil {
		data.Payload = string(pretty)
	}

	a.renderDeliveryDetail(w, data)
}

// handleDeliveriesList returns the filtered delivery rows (htmx partial)
func (a *Admin) handleDeliveriesList(w http.ResponseWriter, r *http.Request) {
	filter := store.DeliveryFilter{
		EndpointID: r.URL.Query().Get("endpoint_id"),
		Status:     r.URL.Query().Get("status"),
		Limit:      deliveriesPageSize,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	deliveries, err := a.store.ListDeliveries(r.Context(), filter)
	if err != nil {
		a.logger.Error("failed to list deliveries", "error", err)
		http.Error(w, "Failed to load deliveries", http.StatusInternalServerError)
		return
	}

	a.renderDeliveriesList(w, deliveries)
}
