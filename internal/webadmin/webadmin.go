// ABOUTME: Console web UI package for hookline management
// ABOUTME: Provides authentication, session management, and console routes

package webadmin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hookline/console/internal/relay"
	"github.com/hookline/console/internal/store"
)

// Username validation regex: alphanumeric + underscores, 3-32 characters
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "hookline_admin_session"

	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "hookline_admin_csrf"

	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days

	// InviteDuration is how long invite links are valid
	InviteDuration = 24 * time.Hour
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const userContextKey contextKey = "admin_user"
const csrfContextKey contextKey = "csrf_token"

// Config holds console UI configuration
type Config struct {
	// BaseURL is the external URL for generating invite links
	BaseURL string
}

// ConsoleStore combines every store slice the console pages need.
type ConsoleStore interface {
	store.AdminStore
	store.KeyStore
	store.EndpointStore
	store.DeliveryStore
	store.BanStore
	store.SettingsStore
}

// Admin handles console UI routes and authentication
type Admin struct {
	store   ConsoleStore
	manager *relay.Manager
	config  Config
	logger  *slog.Logger
}

// New creates a new Admin handler
func New(st ConsoleStore, manager *relay.Manager, cfg Config) *Admin {
	return &Admin{
		store:   st,
		manager: manager,
		config:  cfg,
		logger:  slog.Default().With("component", "admin"),
	}
}

// RegisterRoutes registers all console routes on the given mux
func (a *Admin) RegisterRoutes(mux *http.ServeMux) {
	// Public routes (no auth required)
	mux.HandleFunc("GET /admin/login", a.handleLoginPage)
	mux.HandleFunc("POST /admin/login", a.handleLogin)
	mux.HandleFunc("GET /admin/invite/{token}", a.handleInvitePage)
	mux.HandleFunc("POST /admin/invite/{token}", a.handleInviteSignup)

	// Protected routes (auth required)
	mux.HandleFunc("GET /admin/", a.requireAuth(a.handleDashboard))
	mux.HandleFunc("GET /admin", a.requireAuth(a.handleDashboard))
	mux.HandleFunc("POST /admin/logout", a.requireAuth(a.handleLogout))

	// Relay channel
	mux.HandleFunc("GET /admin/relay", a.requireAuth(a.handleRelayPage))
	mux.HandleFunc("GET /admin/relay/status", a.requireAuth(a.handleRelayStatus))
	mux.HandleFunc("GET /admin/relay/stream", a.requireAuth(a.handleRelayStream))
	mux.HandleFunc("POST /admin/relay/connect", a.requireAuth(a.handleRelayConnect))
	mux.HandleFunc("POST /admin/relay/disconnect", a.requireAuth(a.handleRelayDisconnect))
	mux.HandleFunc("POST /admin/relay/reconnect", a.requireAuth(a.handleRelayReconnect))

	// Relay keys
	mux.HandleFunc("GET /admin/keys", a.requireAuth(a.handleKeysPage))
	mux.HandleFunc("GET /admin/keys/list", a.requireAuth(a.handleKeysList))
	mux.HandleFunc("POST /admin/keys/create", a.requireAuth(a.handleKeyCreate))
	mux.HandleFunc("POST /admin/keys/{id}/revoke", a.requireAuth(a.handleKeyRevoke))
	mux.HandleFunc("DELETE /admin/keys/{id}", a.requireAuth(a.handleKeyDelete))

	// Endpoints
	mux.HandleFunc("GET /admin/endpoints", a.requireAuth(a.handleEndpointsPage))
	mux.HandleFunc("GET /admin/endpoints/list", a.requireAuth(a.handleEndpointsList))
	mux.HandleFunc("POST /admin/endpoints/create", a.requireAuth(a.handleEndpointCreate))
	mux.HandleFunc("GET /admin/endpoints/{id}", a.requireAuth(a.handleEndpointDetail))
	mux.HandleFunc("POST /admin/endpoints/{id}", a.requireAuth(a.handleEndpointUpdate))
	mux.HandleFunc("POST /admin/endpoints/{id}/toggle", a.requireAuth(a.handleEndpointToggle))
	mux.HandleFunc("DELETE /admin/endpoints/{id}", a.requireAuth(a.handleEndpointDelete))

	// Deliveries log
	mux.HandleFunc("GET /admin/deliveries", a.requireAuth(a.handleDeliveriesPage))
	mux.HandleFunc("GET /admin/deliveries/list", a.requireAuth(a.handleDeliveriesList))
	mux.HandleFunc("GET /admin/deliveries/{id}", a.requireAuth(a.handleDeliveryDetail))

	// Ban rules
	mux.HandleFunc("GET /admin/bans", a.requireAuth(a.handleBansPage))
	mux.HandleFunc("GET /admin/bans/list", a.requireAuth(a.handleBansList))
	mux.HandleFunc("POST /admin/bans/create", a.requireAuth(a.handleBanCreate))
	mux.HandleFunc("DELETE /admin/bans/{id}", a.requireAuth(a.handleBanDelete))

	// Relay settings
	mux.HandleFunc("GET /admin/settings", a.requireAuth(a.handleSettingsPage))
	mux.HandleFunc("POST /admin/settings", a.requireAuth(a.handleSettingsSave))

	// Account
	mux.HandleFunc("GET /admin/account", a.requireAuth(a.handleAccountPage))
	mux.HandleFunc("POST /admin/account/password", a.requireAuth(a.handleChangePassword))

	// Invite management
	mux.HandleFunc("POST /admin/invites/create", a.requireAuth(a.handleCreateInvite))

	a.logger.Info("admin routes registered")
}

// requireAuth wraps a handler to require authentication
func (a *Admin) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.getUserFromSession(r)
		if err != nil {
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

// getUserFromSession retrieves the authenticated user from the session cookie
func (a *Admin) getUserFromSession(r *http.Request) (*store.AdminUser, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}

	session, err := a.store.GetAdminSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}

	return a.store.GetAdminUser(r.Context(), session.UserID)
}

// getUserFromContext retrieves the authenticated user from the request context
func getUserFromContext(r *http.Request) *store.AdminUser {
	user, _ := r.Context().Value(userContextKey).(*store.AdminUser)
	return user
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *Admin) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/admin",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form against cookie
func (a *Admin) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		// Also check header for htmx requests
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// createSession creates a new session for a user and sets the cookie
func (a *Admin) createSession(w http.ResponseWriter, r *http.Request, userID string) error {
	sessionID, err := generateSecureToken(32)
	if err != nil {
		return err
	}

	session := &store.AdminSession{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}

	if err := a.store.CreateAdminSession(r.Context(), session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/admin",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// handleLoginPage renders the login page
func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard
	if _, err := a.getUserFromSession(r); err == nil {
		http.Redirect(w, r, "/admin/", http.StatusSeeOther)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderLoginPage(w, "", csrfToken)
}

// handleLogin processes login form submission
func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid form data", csrfToken)
		return
	}

	if !a.validateCSRF(r) {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid request, please try again", csrfToken)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	if username == "" || password == "" {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Username and password required", csrfToken)
		return
	}

	user, err := a.store.GetAdminUserByUsername(r.Context(), username)

	// Dummy hash keeps response timing flat when the username is unknown.
	dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

	if err != nil {
		if errors.Is(err, store.ErrAdminUserNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			_, csrfToken := a.ensureCSRFToken(w, r)
			a.renderLoginPage(w, "Invalid username or password", csrfToken)
			return
		}
		a.logger.Error("failed to get user", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "An error occurred", csrfToken)
		return
	}

	if user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Password login not enabled for this account", csrfToken)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid username or password", csrfToken)
		return
	}

	if err := a.createSession(w, r, user.ID); err != nil {
		a.logger.Error("failed to create session", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "An error occurred", csrfToken)
		return
	}

	a.logger.Info("admin login successful", "username", username)
	http.Redirect(w, r, "/admin/", http.StatusSeeOther)
}

// handleLogout logs out the current user
func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		// Validate CSRF - but don't block logout if invalid
		if !a.validateCSRF(r) {
			a.logger.Warn("logout request with invalid CSRF token")
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err == nil {
		_ = a.store.DeleteAdminSession(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// handleInvitePage renders the signup page for an invite link
func (a *Admin) handleInvitePage(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		http.Error(w, "Invalid invite link", http.StatusBadRequest)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)

	invite, err := a.store.GetAdminInvite(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrAdminInviteNotFound) {
			a.renderInvitePage(w, token, "Invalid invite link", csrfToken)
			return
		}
		a.logger.Error("failed to get invite", "error", err)
		a.renderInvitePage(w, token, "An error occurred", csrfToken)
		return
	}

	if invite.UsedAt != nil {
		a.renderInvitePage(w, token, "This invite has already been used", csrfToken)
		return
	}
	if time.Now().After(invite.ExpiresAt) {
		a.renderInvitePage(w, token, "This invite has expired", csrfToken)
		return
	}

	a.renderInvitePage(w, token, "", csrfToken)
}

// handleInviteSignup processes the signup form from an invite link
func (a *Admin) handleInviteSignup(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		http.Error(w, "Invalid invite link", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "Invalid form data", csrfToken)
		return
	}

	if !a.validateCSRF(r) {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "Invalid request, please try again", csrfToken)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	displayName := r.FormValue("display_name")

	if username == "" || password == "" {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "Username and password required", csrfToken)
		return
	}
	if errMsg := validateUsername(username); errMsg != "" {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, errMsg, csrfToken)
		return
	}
	if len(password) < 8 {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "Password must be at least 8 characters", csrfToken)
		return
	}
	if displayName == "" {
		displayName = username
	}

	invite, err := a.store.GetAdminInvite(r.Context(), token)
	if err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "Invalid invite link", csrfToken)
		return
	}
	if invite.UsedAt != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "This invite has already been used", csrfToken)
		return
	}
	if time.Now().After(invite.ExpiresAt) {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "This invite has expired", csrfToken)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error("failed to hash password", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "An error occurred", csrfToken)
		return
	}

	userID, err := generateSecureToken(16)
	if err != nil {
		a.logger.Error("failed to generate user ID", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "An error occurred", csrfToken)
		return
	}

	user := &store.AdminUser{
		ID:           userID,
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    time.Now(),
	}

	if err := a.store.CreateAdminUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			_, csrfToken := a.ensureCSRFToken(w, r)
			a.renderInvitePage(w, token, "Username already taken", csrfToken)
			return
		}
		a.logger.Error("failed to create user", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderInvitePage(w, token, "An error occurred", csrfToken)
		return
	}

	if err := a.store.UseAdminInvite(r.Context(), token, userID); err != nil {
		a.logger.Error("failed to mark invite as used", "error", err)
		// User was created, so continue
	}

	if err := a.createSession(w, r, userID); err != nil {
		a.logger.Error("failed to create session", "error", err)
		http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
		return
	}

	a.logger.Info("admin user created via invite", "username", username, "invite", token)
	http.Redirect(w, r, "/admin/", http.StatusSeeOther)
}

// handleDashboard renders the main console dashboard
func (a *Admin) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	_, csrfToken := a.ensureCSRFToken(w, r)

	since := time.Now().Add(-24 * time.Hour)
	recent, err := a.store.CountDeliveriesSince(r.Context(), since)
	if err != nil {
		a.logger.Error("failed to count deliveries", "error", err)
	}

	endpoints, err := a.store.ListEndpoints(r.Context())
	if err != nil {
		a.logger.Error("failed to list endpoints", "error", err)
	}

	keys, err := a.store.ListRelayKeys(r.Context())
	if err != nil {
		a.logger.Error("failed to list relay keys", "error", err)
	}

	rules, err := a.store.ListBanRules(r.Context())
	if err != nil {
		a.logger.Error("failed to list ban rules", "error", err)
	}

	admins, err := a.store.ListAdminUsers(r.Context())
	if err != nil {
		a.logger.Error("failed to list admin users", "error", err)
	}

	activeKeys := 0
	for _, k := range keys {
		if !k.Revoked() {
			activeKeys++
		}
	}

	a.renderDashboard(w, dashboardData{
		Title:           "Dashboard",
		User:            user,
		CSRFToken:       csrfToken,
		RelayStatus:     a.manager.CurrentStatus().String(),
		DeliveriesToday: recent,
		EndpointCount:   len(endpoints),
		ActiveKeyCount:  activeKeys,
		BanCount:        len(rules),
		Admins:          admins,
	})
}

// handleCreateInvite creates a new invite link
func (a *Admin) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	user := getUserFromContext(r)

	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate invite token", "error", err)
		http.Error(w, "Failed to create invite", http.StatusInternalServerError)
		return
	}

	invite := &store.AdminInvite{
		ID:        token,
		CreatedBy: user.ID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(InviteDuration),
	}

	if err := a.store.CreateAdminInvite(r.Context(), invite); err != nil {
		a.logger.Error("failed to create invite", "error", err)
		http.Error(w, "Failed to create invite", http.StatusInternalServerError)
		return
	}

	inviteURL := a.config.BaseURL + "/admin/invite/" + token
	a.logger.Info("created admin invite", "created_by", user.Username, "token", token)

	a.renderInviteCreated(w, inviteURL)
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validateUsername checks if username meets requirements
// Returns an error message or empty string if valid
func validateUsername(username string) string {
	if len(username) < 3 {
		return "Username must be at least 3 characters"
	}
	if len(username) > 32 {
		return "Username must be at most 32 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "Username must start with a letter and contain only letters, numbers, and underscores"
	}
	return ""
}
