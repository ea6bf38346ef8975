// ABOUTME: Console handlers for the signed-in admin's own account
// ABOUTME: Currently just the change-password form

package webadmin

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// handleAccountPage renders the account page
func (a *Admin) handleAccountPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderAccountPage(w, accountPageData{
		Title:     "Account",
		User:      user,
		CSRFToken: csrfToken,
	})
}

// handleChangePassword updates the signed-in admin's password after
// verifying the current one
func (a *Admin) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	data := accountPageData{
		Title:     "Account",
		User:      user,
		CSRFToken: csrfToken,
	}

	current := r.FormValue("current_password")
	next := r.FormValue("new_password")
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		data.Error = "Current password is incorrect"
		a.renderAccountPage(w, data)
		return
	}
	if len(next) < 8 {
		data.Error = "New password must be at least 8 characters"
		a.renderAccountPage(w, data)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error("failed to hash password", "error", err)
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}
	if err := a.store.UpdateAdminUserPassword(r.Context(), user.ID, string(hash)); err != nil {
		a.logger.Error("failed to update password", "error", err, "user", user.Username)
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	a.logger.Info("admin password changed", "user", user.Username)
	data.Saved = true
	a.renderAccountPage(w, data)
}
