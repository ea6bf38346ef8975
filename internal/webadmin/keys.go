// ABOUTME: Console handlers for relay key management
// ABOUTME: Key creation shows the plaintext token exactly once

package webadmin

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/hookline/console/internal/store"
)

const keyPrefixLen = 8

// handleKeysPage renders the relay keys page
func (a *Admin) handleKeysPage(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderKeysPage(w, keysPageData{
		Title:     "Relay Keys",
		User:      user,
		CSRFToken: csrfToken,
	})
}

// handleKeysList returns the keys table (htmx partial)
func (a *Admin) handleKeysList(w http.ResponseWriter, r *http.Request) {
	keys, err := a.store.ListRelayKeys(r.Context())
	if err != nil {
		a.logger.Error("failed to list relay keys", "error", err)
		http.Error(w, "Failed to load keys", http.StatusInternalServerError)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderKeysList(w, keys, csrfToken)
}

// handleKeyCreate mints a new relay key. The plaintext token is rendered
// once in the response and never stored.
func (a *Admin) handleKeyCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		http.Error(w, "Key name required", http.StatusBadRequest)
		return
	}

	token, err := generateKeyToken()
	if err != nil {
		a.logger.Error("failed to generate key token", "error", err)
		http.Error(w, "Failed to create key", http.StatusInternalServerError)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error("failed to hash key token", "error", err)
		http.Error(w, "Failed to create key", http.StatusInternalServerError)
		return
	}

	user := getUserFromContext(r)
	key := &store.RelayKey{
		Name:      name,
		TokenHash: string(hash),
		Prefix:    token[:keyPrefixLen],
		CreatedBy: user.ID,
	}

	if err := a.store.CreateRelayKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			http.Error(w, "A key with that name already exists", http.StatusConflict)
			return
		}
		a.logger.Error("failed to create relay key", "error", err)
		http.Error(w, "Failed to create key", http.StatusInternalServerError)
		return
	}

	a.logger.Info("relay key created", "name", name, "created_by", user.Username)
	a.renderKeyCreated(w, key, token)
}

// handleKeyRevoke revokes a relay key
func (a *Admin) handleKeyRevoke(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if err := a.store.RevokeRelayKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Key not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to revoke relay key", "error", err, "id", id)
		http.Error(w, "Failed to revoke key", http.StatusInternalServerError)
		return
	}

	a.logger.Info("relay key revoked", "id", id)
	a.handleKeysList(w, r)
}

// handleKeyDelete deletes a relay key
func (a *Admin) handleKeyDelete(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if err := a.store.DeleteRelayKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Key not found", http.StatusNotFound)
			return
		}
		a.logger.Error("failed to delete relay key", "error", err, "id", id)
		http.Error(w, "Failed to delete key", http.StatusInternalServerError)
		return
	}

	a.logger.Info("relay key deleted", "id", id)
	a.handleKeysList(w, r)
}

// generateKeyToken produces a URL-safe token with a recognizable prefix.
func generateKeyToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "hk_" + base64.RawURLEncoding.EncodeToString(b), nil
}
