// ABOUTME: Console handlers for webhook endpoint management
// ABOUTME: Endpoint descriptions are markdown, rendered with goldmark

package webadmin

import (
	"errors"
	"net/http"

	"github.com/hookline/console/internal/store"
)

// handleEndpointsPage renders the endpoints page
func (a *Admin) handleEndpointsPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderEndpointsPage(w, endpointsPageData{
		Title:     "Endpoints",
		User:      user,
		CSRFToken: csrfToken,
	})
}

// handleEndpointsList returns the endpoints table (htmx partial)
func (a *Admin) handleEndpointsList(w http.ResponseWriter, r *http.Request) {
	endpoints, err := a.store.ListEndpoints(r.Context())
	if err != nil {
		a.logger.Error("failed to list endpoints", "error", err)
		http.Error(w, "Failed to load endpoints", http.StatusInternalServerError)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderEndpointsList(w, endpoints, csrfToken)
}

// handleEndpointCreate creates a new webhook endpoint
func (a *Admin) handleEndpointCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	name := r.FormValue("name")
	destination := r.FormValue("destination")
	if name == "" || destination == "" {
		http.Error(w, "Name and destination required", http.StatusBadRequest)
		return
	}

	ep := &store.Endpoint{
		Name:        name,
		Destination: destination,
		Description: r.FormValue("description"),
		Active:      true,
	}

	if err := a.store.CreateEndpoint(r.Context(), ep); err != nil {
		a.logger.Error("failed to create endpoint", "error", err)
		http.Error(w, "Failed to create endpoint", http.StatusInternalServerError)
		return
	}

	a.logger.Info("endpoint created", "name", name, "user", getUserFromContext(r).Username)
	a.handleEndpointsList(w, r)
}

// handleEndpointDetail renders a single endpoint with its rendered
// description and the edit form
func (a *Admin) handleEndpointDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ep, err := a.store.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Endpoint not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to get endpoint", "error", err, "id", id)
		http.Error(w, "Failed to load endpoint", http.StatusInternalServerError)
		return
	}

	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderEndpointDetail(w, endpointDetailData{
		Title:           ep.Name,
		User:            user,
		CSRFToken:       csrfToken,
		Endpoint:        ep,
		DescriptionHTML: a.renderMarkdown(ep.Description),
	})
}

// handleEndpointUpdate saves edits from the endpoint detail form
func (a *Admin) handleEndpointUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	ep, err := a.store.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Endpoint not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to get endpoint", "error", err, "id", id)
		http.Error(w, "Failed to load endpoint", http.StatusInternalServerError)
		return
	}

	name := r.FormValue("name")
	destination := r.FormValue("destination")
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	if name == "" || destination == "" {
		a.renderEndpointDetail(w, endpointDetailData{
			Title:           ep.Name,
			User:            user,
			CSRFToken:       csrfToken,
			Endpoint:        ep,
			DescriptionHTML: a.renderMarkdown(ep.Description),
			Error:           "Name and destination required",
		})
		return
	}

	ep.Name = name
	ep.Destination = destination
	ep.Description = r.FormValue("description")
	if err := a.store.UpdateEndpoint(r.Context(), ep); err != nil {
		a.logger.Error("failed to update endpoint", "error", err, "id", id)
		http.Error(w, "Failed to update endpoint", http.StatusInternalServerError)
		return
	}

	a.logger.Info("endpoint updated", "id", id, "user", user.Username)
	a.renderEndpointDetail(w, endpointDetailData{
		Title:           ep.Name,
		User:            user,
		CSRFToken:       csrfToken,
		Endpoint:        ep,
		DescriptionHTML: a.renderMarkdown(ep.Description),
		Saved:           true,
	})
}

// handleEndpointToggle flips an endpoint between active and paused
func (a *Admin) handleEndpointToggle(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	ep, err := a.store.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Endpoint not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to get endpoint", "error", err, "id", id)
		http.Error(w, "Failed to load endpoint", http.StatusInternalServerError)
		return
	}

	ep.Active = !ep.Active
	if err := a.store.UpdateEndpoint(r.Context(), ep); err != nil {
		a.logger.Error("failed to update endpoint", "error", err, "id", id)
		http.Error(w, "Failed to update endpoint", http.StatusInternalServerError)
		return
	}

	a.logger.Info("endpoint toggled", "id", id, "active", ep.Active)
	a.handleEndpointsList(w, r)
}

// handleEndpointDelete removes an endpoint
func (a *Admin) handleEndpointDelete(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if err := a.store.DeleteEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Endpoint not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to delete endpoint", "error", err, "id", id)
		http.Error(w, "Failed to delete endpoint", http.StatusInternalServerError)
		return
	}

	a.logger.Info("endpoint deleted", "id", id)
	a.handleEndpointsList(w, r)
}
