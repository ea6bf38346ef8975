// ABOUTME: Console handlers for ban rule management
// ABOUTME: Rules block traffic by source IP, endpoint, or event type

package webadmin

import (
	"errors"
	"net/http"

	"github.com/hookline/console/internal/store"
)

// handleBansPage renders the ban rules page
func (a *Admin) handleBansPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderBansPage(w, bansPageData{
		Title:     "Ban Rules",
		User:      user,
		CSRFToken: csrfToken,
	})
}

// handleBansList returns the ban rules table (htmx partial)
func (a *Admin) handleBansList(w http.ResponseWriter, r *http.Request) {
	rules, err := a.store.ListBanRules(r.Context())
	if err != nil {
		a.logger.Error("failed to list ban rules", "error", err)
		http.Error(w, "Failed to load ban rules", http.StatusInternalServerError)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderBansList(w, rules, csrfToken)
}

// handleBanCreate adds a new ban rule
func (a *Admin) handleBanCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	kind := r.FormValue("kind")
	value := r.FormValue("value")
	switch kind {
	case store.BanKindIP, store.BanKindEndpoint, store.BanKindEventType:
	default:
		http.Error(w, "Invalid ban kind", http.StatusBadRequest)
		return
	}
	if value == "" {
		http.Error(w, "Ban value required", http.StatusBadRequest)
		return
	}

	user := getUserFromContext(r)
	rule := &store.BanRule{
		Kind:      kind,
		Value:     value,
		Reason:    r.FormValue("reason"),
		CreatedBy: user.ID,
	}

	if err := a.store.CreateBanRule(r.Context(), rule); err != nil {
		if errors.Is(err, store.ErrBanExists) {
			http.Error(w, "That ban rule already exists", http.StatusConflict)
			return
		}
		a.logger.Error("failed to create ban rule", "error", err)
		http.Error(w, "Failed to create ban rule", http.StatusInternalServerError)
		return
	}

	a.logger.Info("ban rule created", "kind", kind, "value", value, "user", user.Username)
	a.handleBansList(w, r)
}

// handleBanDelete removes a ban rule
func (a *Admin) handleBanDelete(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if err := a.store.DeleteBanRule(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Ban rule not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to delete ban rule", "error", err, "id", id)
		http.Error(w, "Failed to delete ban rule", http.StatusInternalServerError)
		return
	}

	a.logger.Info("ban rule deleted", "id", id)
	a.handleBansList(w, r)
}
