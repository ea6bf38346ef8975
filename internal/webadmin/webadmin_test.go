// ABOUTME: Tests for console authentication, CSRF validation, and page handlers.
// ABOUTME: Runs handlers directly against a real SQLite store and an idle relay manager.

package webadmin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hookline/console/internal/relay"
	"github.com/hookline/console/internal/store"
)

// newTestAdmin creates an Admin backed by a temp SQLite store and an
// idle relay manager.
func newTestAdmin(t *testing.T) (*Admin, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	manager := relay.NewManager(relay.ManagerParams{
		Config: relay.Config{
			Address:              "ws://127.0.0.1:1/relay",
			ReconnectInterval:    time.Second,
			MaxReconnectAttempts: 1,
			Enabled:              true,
		},
	})
	t.Cleanup(manager.Close)

	admin := New(st, manager, Config{BaseURL: "http://localhost:8080"})
	return admin, st
}

// createTestUser inserts an admin user with a known password.
func createTestUser(t *testing.T, st *store.SQLiteStore, username, password string) *store.AdminUser {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &store.AdminUser{
		ID:           "user-" + username,
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := st.CreateAdminUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// requestWithUser attaches a test AdminUser to the request context,
// bypassing requireAuth for direct handler testing.
func requestWithUser(r *http.Request, user *store.AdminUser) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, user)
	return r.WithContext(ctx)
}

// withCSRF adds a matching CSRF cookie and header to the request.
func withCSRF(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	r.Header.Set("X-CSRF-Token", "test-csrf-token")
	return r
}

func TestLoginSuccess(t *testing.T) {
	admin, st := newTestAdmin(t)
	createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"username":   {"alice"},
		"password":   {"correct horse battery"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	rec := httptest.NewRecorder()

	admin.handleLogin(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect 303, got %d", rec.Code)
	}

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected session cookie to be set")
	}

	session, err := st.GetAdminSession(context.Background(), sessionCookie.Value)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if session.UserID != "user-alice" {
		t.Fatalf("session belongs to %q, want user-alice", session.UserID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	admin, st := newTestAdmin(t)
	createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"username":   {"alice"},
		"password":   {"wrong"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	rec := httptest.NewRecorder()

	admin.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with error page, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid username or password") {
		t.Fatal("expected error message in response")
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			t.Fatal("session cookie must not be set on failed login")
		}
	}
}

func TestLoginUnknownUser(t *testing.T) {
	admin, _ := newTestAdmin(t)

	form := url.Values{
		"username":   {"nobody"},
		"password":   {"whatever"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	rec := httptest.NewRecorder()

	admin.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with error page, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid username or password") {
		t.Fatal("expected generic error for unknown user")
	}
}

func TestLoginMissingCSRF(t *testing.T) {
	admin, st := newTestAdmin(t)
	createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"username": {"alice"},
		"password": {"correct horse battery"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	admin.handleLogin(rec, req)

	if rec.Code == http.StatusSeeOther {
		t.Fatal("login must not succeed without CSRF token")
	}
}

func TestRequireAuthRedirectsWithoutSession(t *testing.T) {
	admin, _ := newTestAdmin(t)

	handler := admin.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("protected handler must not run without a session")
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/login" {
		t.Fatalf("expected redirect to /admin/login, got %q", loc)
	}
}

func TestRequireAuthPassesValidSession(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	session := &store.AdminSession{
		ID:        "session-1",
		UserID:    user.ID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := st.CreateAdminSession(context.Background(), session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	var got *store.AdminUser
	handler := admin.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		got = getUserFromContext(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-1"})
	rec := httptest.NewRecorder()
	handler(rec, req)

	if got == nil || got.Username != "alice" {
		t.Fatalf("expected alice in context, got %+v", got)
	}
}

func TestInviteSignupCreatesUser(t *testing.T) {
	admin, st := newTestAdmin(t)

	invite := &store.AdminInvite{
		ID:        "invite-token-1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := st.CreateAdminInvite(context.Background(), invite); err != nil {
		t.Fatalf("failed to create invite: %v", err)
	}

	form := url.Values{
		"username":   {"bob"},
		"password":   {"longenoughpw"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/invite/invite-token-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req.SetPathValue("token", "invite-token-1")
	rec := httptest.NewRecorder()

	admin.handleInviteSignup(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect 303, got %d: %s", rec.Code, rec.Body.String())
	}

	user, err := st.GetAdminUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("longenoughpw")); err != nil {
		t.Fatal("stored hash does not match password")
	}

	// The invite is now spent.
	used, err := st.GetAdminInvite(context.Background(), "invite-token-1")
	if err != nil {
		t.Fatalf("failed to reload invite: %v", err)
	}
	if used.UsedAt == nil {
		t.Fatal("invite should be marked used")
	}
}

func TestInviteSignupRejectsShortPassword(t *testing.T) {
	admin, st := newTestAdmin(t)

	invite := &store.AdminInvite{
		ID:        "invite-token-2",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := st.CreateAdminInvite(context.Background(), invite); err != nil {
		t.Fatalf("failed to create invite: %v", err)
	}

	form := url.Values{
		"username":   {"bob"},
		"password":   {"short"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/invite/invite-token-2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req.SetPathValue("token", "invite-token-2")
	rec := httptest.NewRecorder()

	admin.handleInviteSignup(rec, req)

	if !strings.Contains(rec.Body.String(), "at least 8 characters") {
		t.Fatal("expected password length error")
	}
	if _, err := st.GetAdminUserByUsername(context.Background(), "bob"); err == nil {
		t.Fatal("user must not be created with short password")
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"alice", true},
		{"alice_bob", true},
		{"a1", false},     // too short
		{"1alice", false}, // must start with a letter
		{"alice!", false},
		{"", false},
		{strings.Repeat("a", 32), true},
		{strings.Repeat("a", 33), false},
	}

	for _, tt := range tests {
		if got := validateUsername(tt.username) == ""; got != tt.valid {
			t.Errorf("validateUsername(%q) = %v, want %v", tt.username, got, tt.valid)
		}
	}
}

func TestKeyCreateAndRevoke(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"name":       {"ci-deploy"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/keys/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleKeyCreate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "hk_") {
		t.Fatal("expected plaintext token in created response")
	}

	keys, err := st.ListRelayKeys(context.Background())
	if err != nil {
		t.Fatalf("failed to list keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	if keys[0].Name != "ci-deploy" {
		t.Fatalf("key name = %q, want ci-deploy", keys[0].Name)
	}
	if keys[0].Revoked() {
		t.Fatal("new key must not be revoked")
	}

	// Revoke it.
	revokeReq := httptest.NewRequest(http.MethodPost, "/admin/keys/"+keys[0].ID+"/revoke", nil)
	revokeReq = withCSRF(revokeReq)
	revokeReq.SetPathValue("id", keys[0].ID)
	revokeReq = requestWithUser(revokeReq, user)
	revokeRec := httptest.NewRecorder()

	admin.handleKeyRevoke(revokeRec, revokeReq)

	if revokeRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", revokeRec.Code)
	}
	key, err := st.GetRelayKey(context.Background(), keys[0].ID)
	if err != nil {
		t.Fatalf("failed to reload key: %v", err)
	}
	if !key.Revoked() {
		t.Fatal("key should be revoked")
	}
}

func TestEndpointToggle(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	ep := &store.Endpoint{
		ID:          "ep-1",
		Name:        "billing",
		Destination: "https://billing.internal/hooks",
		Active:      true,
	}
	if err := st.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("failed to create endpoint: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/endpoints/ep-1/toggle", nil)
	req = withCSRF(req)
	req.SetPathValue("id", "ep-1")
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleEndpointToggle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, err := st.GetEndpoint(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("failed to reload endpoint: %v", err)
	}
	if got.Active {
		t.Fatal("endpoint should be paused after toggle")
	}
}

func TestBanCreateDuplicateConflict(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	makeReq := func() (*httptest.ResponseRecorder, *http.Request) {
		form := url.Values{
			"kind":       {"ip"},
			"value":      {"203.0.113.7"},
			"csrf_token": {"test-csrf-token"},
		}
		req := httptest.NewRequest(http.MethodPost, "/admin/bans/create", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
		return httptest.NewRecorder(), requestWithUser(req, user)
	}

	rec, req := makeReq()
	admin.handleBanCreate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first create: expected 200, got %d", rec.Code)
	}

	rec, req = makeReq()
	admin.handleBanCreate(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", rec.Code)
	}

	rules, err := st.ListBanRules(context.Background())
	if err != nil {
		t.Fatalf("failed to list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
}

func TestBanCreateRejectsUnknownKind(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"kind":       {"hostname"},
		"value":      {"example.com"},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/bans/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleBanCreate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rules, _ := st.ListBanRules(context.Background())
	if len(rules) != 0 {
		t.Fatal("no rule should be created for unknown kind")
	}
}

func TestSettingsSavePersistsAndApplies(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"reconnect_interval":     {"10s"},
		"max_reconnect_attempts": {"7"},
		"enabled":                {"on"},
		"csrf_token":             {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleSettingsSave(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Settings saved") {
		t.Fatal("expected saved confirmation")
	}

	interval, err := st.GetSetting(context.Background(), SettingReconnectInterval)
	if err != nil || interval != "10s" {
		t.Fatalf("reconnect interval setting = %q, %v", interval, err)
	}

	cfg := admin.manager.CurrentConfig()
	if cfg.ReconnectInterval != 10*time.Second {
		t.Fatalf("manager interval = %v, want 10s", cfg.ReconnectInterval)
	}
	if cfg.MaxReconnectAttempts != 7 {
		t.Fatalf("manager max attempts = %d, want 7", cfg.MaxReconnectAttempts)
	}
}

func TestSettingsSaveRejectsBadInterval(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"reconnect_interval":     {"not-a-duration"},
		"max_reconnect_attempts": {"5"},
		"csrf_token":             {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleSettingsSave(rec, req)

	if _, err := st.GetSetting(context.Background(), SettingReconnectInterval); err == nil {
		t.Fatal("bad interval must not be persisted")
	}
}

func TestRelayStatusBadge(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	req := httptest.NewRequest(http.MethodGet, "/admin/relay/status", nil)
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleRelayStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "idle") {
		t.Fatalf("expected idle badge, got %s", rec.Body.String())
	}
}

func TestCreateInviteGeneratesLink(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	req := httptest.NewRequest(http.MethodPost, "/admin/invites/create", nil)
	req = withCSRF(req)
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleCreateInvite(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "http://localhost:8080/admin/invite/") {
		t.Fatalf("expected invite URL in response, got %s", rec.Body.String())
	}
}

func TestEndpointDetailRendersMarkdown(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	ep := &store.Endpoint{
		ID:          "ep-1",
		Name:        "billing",
		Destination: "https://billing.internal/hooks",
		Description: "Handles **invoice** events",
		Active:      true,
	}
	if err := st.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("failed to create endpoint: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/endpoints/ep-1", nil)
	req.SetPathValue("id", "ep-1")
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleEndpointDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<strong>invoice</strong>") {
		t.Fatal("expected markdown description to be rendered as HTML")
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/endpoints/missing", nil)
	req.SetPathValue("id", "missing")
	req = requestWithUser(req, user)
	rec = httptest.NewRecorder()

	admin.handleEndpointDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown endpoint, got %d", rec.Code)
	}
}

func TestEndpointUpdatePersists(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	ep := &store.Endpoint{
		ID:          "ep-1",
		Name:        "billing",
		Destination: "https://billing.internal/hooks",
		Active:      true,
	}
	if err := st.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("failed to create endpoint: %v", err)
	}

	form := url.Values{
		"name":        {"billing-v2"},
		"destination": {"https://billing-v2.internal/hooks"},
		"description": {"Migrated to the *new* billing service"},
		"csrf_token":  {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/endpoints/ep-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req.SetPathValue("id", "ep-1")
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleEndpointUpdate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, err := st.GetEndpoint(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("failed to reload endpoint: %v", err)
	}
	if got.Name != "billing-v2" {
		t.Fatalf("name not updated: %q", got.Name)
	}
	if got.Destination != "https://billing-v2.internal/hooks" {
		t.Fatalf("destination not updated: %q", got.Destination)
	}
	if !strings.Contains(rec.Body.String(), "Endpoint saved.") {
		t.Fatal("expected saved confirmation in response")
	}
}

func TestEndpointUpdateRequiresNameAndDestination(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	ep := &store.Endpoint{
		ID:          "ep-1",
		Name:        "billing",
		Destination: "https://billing.internal/hooks",
		Active:      true,
	}
	if err := st.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("failed to create endpoint: %v", err)
	}

	form := url.Values{
		"name":       {""},
		"csrf_token": {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/endpoints/ep-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req.SetPathValue("id", "ep-1")
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleEndpointUpdate(rec, req)

	if !strings.Contains(rec.Body.String(), "Name and destination required") {
		t.Fatal("expected validation error in response")
	}
	got, err := st.GetEndpoint(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("failed to reload endpoint: %v", err)
	}
	if got.Name != "billing" {
		t.Fatalf("endpoint should be unchanged, got name %q", got.Name)
	}
}

func TestDeliveryDetail(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	d := &store.Delivery{
		ID:        "del-1",
		EventType: "push",
		Payload:   `{"ref":"refs/heads/main"}`,
		Status:    store.DeliveryDelivered,
	}
	if err := st.InsertDelivery(context.Background(), d); err != nil {
		t.Fatalf("failed to insert delivery: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/deliveries/del-1", nil)
	req.SetPathValue("id", "del-1")
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleDeliveryDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "push") {
		t.Fatal("expected event type in response")
	}
	if !strings.Contains(body, "refs/heads/main") {
		t.Fatal("expected payload in response")
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/deliveries/missing", nil)
	req.SetPathValue("id", "missing")
	req = requestWithUser(req, user)
	rec = httptest.NewRecorder()

	admin.handleDeliveryDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown delivery, got %d", rec.Code)
	}
}

func TestDashboardCounts(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")
	ctx := context.Background()

	if err := st.CreateRelayKey(ctx, &store.RelayKey{
		ID: "key-1", Name: "ci", TokenHash: "hash", Prefix: "hk_abc1",
	}); err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	if err := st.CreateBanRule(ctx, &store.BanRule{Kind: store.BanKindIP, Value: "203.0.113.7"}); err != nil {
		t.Fatalf("failed to create ban rule: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleDashboard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Active keys") || !strings.Contains(body, "Ban rules") {
		t.Fatal("expected key and ban counts on the dashboard")
	}
	if !strings.Contains(body, "alice") {
		t.Fatal("expected team list on the dashboard")
	}
}

func TestChangePassword(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"current_password": {"correct horse battery"},
		"new_password":     {"battery staple horse"},
		"csrf_token":       {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/account/password", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleChangePassword(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, err := st.GetAdminUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("battery staple horse")); err != nil {
		t.Fatal("new password does not verify against stored hash")
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	admin, st := newTestAdmin(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	form := url.Values{
		"current_password": {"wrong"},
		"new_password":     {"battery staple horse"},
		"csrf_token":       {"test-csrf-token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/account/password", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "test-csrf-token"})
	req = requestWithUser(req, user)
	rec := httptest.NewRecorder()

	admin.handleChangePassword(rec, req)

	if !strings.Contains(rec.Body.String(), "Current password is incorrect") {
		t.Fatal("expected rejection of wrong current password")
	}
	got, err := st.GetAdminUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Fatal("stored hash should be unchanged")
	}
}
