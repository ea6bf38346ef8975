// ABOUTME: Template rendering functions for the admin console
// ABOUTME: Loads templates from embedded filesystem and renders them

package webadmin

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/hookline/console/internal/relay"
	"github.com/hookline/console/internal/store"
)

// Template data types
type loginData struct {
	Title     string
	User      *store.AdminUser // always nil, keeps the base layout happy
	Error     string
	CSRFToken string
}

type inviteData struct {
	Title     string
	User      *store.AdminUser // always nil, keeps the base layout happy
	Token     string
	Error     string
	CSRFToken string
}

type dashboardData struct {
	Title           string
	User            *store.AdminUser
	CSRFToken       string
	RelayStatus     string
	DeliveriesToday int
	EndpointCount   int
	ActiveKeyCount  int
	BanCount        int
	Admins          []*store.AdminUser
}

type accountPageData struct {
	Title     string
	User      *store.AdminUser
	CSRFToken string
	Error     string
	Saved     bool
}

type inviteCreatedData struct {
	URL string
}

type relayPageData struct {
	Title           string
	User            *store.AdminUser
	CSRFToken       string
	Status          string
	Stats           relay.Stats
	LastMessageType string
}

type relayStatusData struct {
	Status string
}

type settingsPageData struct {
	Title             string
	User              *store.AdminUser
	CSRFToken         string
	Error             string
	Saved             bool
	ReconnectInterval string
	MaxReconnects     int
	Enabled           bool
}

type keysPageData struct {
	Title     string
	User      *store.AdminUser
	CSRFToken string
}

type keysListData struct {
	Keys      []*store.RelayKey
	CSRFToken string
}

type keyCreatedData struct {
	Key   *store.RelayKey
	Token string
}

type endpointsPageData struct {
	Title     string
	User      *store.AdminUser
	CSRFToken string
}

type endpointItem struct {
	Endpoint        *store.Endpoint
	DescriptionHTML template.HTML
}

type endpointsListData struct {
	Endpoints []endpointItem
	CSRFToken string
}

type endpointDetailData struct {
	Title           string
	User            *store.AdminUser
	CSRFToken       string
	Endpoint        *store.Endpoint
	DescriptionHTML template.HTML
	Error           string
	Saved           bool
}

type deliveriesPageData struct {
	Title     string
	User      *store.AdminUser
	CSRFToken string
	Endpoints []*store.Endpoint
}

type deliveriesListData struct {
	Deliveries []*store.Delivery
}

type deliveryDetailData struct {
	Title     string
	User      *store.AdminUser
	CSRFToken string
	Delivery  *store.Delivery
	Endpoint  *store.Endpoint
	Payload   string
}

type bansPageData struct {
	Title     string
	User      *store.AdminUser
	CSRFToken string
}

type bansListData struct {
	Rules     []*store.BanRule
	CSRFToken string
}

// renderLoginPage renders the login page
func (a *Admin) renderLoginPage(w http.ResponseWriter, errorMsg, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	data := loginData{
		Title:     "Login",
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render login page", "error", err)
	}
}

// renderInvitePage renders the invite/signup page
func (a *Admin) renderInvitePage(w http.ResponseWriter, token, errorMsg, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/invite.html"))

	data := inviteData{
		Title:     "Create Account",
		Token:     token,
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render invite page", "error", err)
	}
}

// renderDashboard renders the main dashboard
func (a *Admin) renderDashboard(w http.ResponseWriter, data dashboardData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/dashboard.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render dashboard", "error", err)
	}
}

// renderInviteCreated renders the invite created partial (htmx response)
func (a *Admin) renderInviteCreated(w http.ResponseWriter, inviteURL string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/invite_created.html"))

	data := inviteCreatedData{
		URL: inviteURL,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render invite created", "error", err)
	}
}

// renderRelayPage renders the relay control page
func (a *Admin) renderRelayPage(w http.ResponseWriter, data relayPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/relay.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render relay page", "error", err)
	}
}

// renderRelayStatusBadge renders the relay status badge partial (htmx response)
func (a *Admin) renderRelayStatusBadge(w http.ResponseWriter, status string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/relay_status.html"))

	data := relayStatusData{
		Status: status,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render relay status", "error", err)
	}
}

// renderSettingsPage renders the relay settings page
func (a *Admin) renderSettingsPage(w http.ResponseWriter, data settingsPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/settings.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render settings page", "error", err)
	}
}

// renderKeysPage renders the relay keys management page
func (a *Admin) renderKeysPage(w http.ResponseWriter, data keysPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/keys.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render keys page", "error", err)
	}
}

// renderKeysList renders the relay keys list partial
func (a *Admin) renderKeysList(w http.ResponseWriter, keys []*store.RelayKey, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/keys_list.html"))

	data := keysListData{
		Keys:      keys,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render keys list", "error", err)
	}
}

// renderKeyCreated renders the key created partial showing the plaintext
// token. This is the only time the token is visible.
func (a *Admin) renderKeyCreated(w http.ResponseWriter, key *store.RelayKey, token string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/key_created.html"))

	data := keyCreatedData{
		Key:   key,
		Token: token,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render key created", "error", err)
	}
}

// renderEndpointsPage renders the endpoints management page
func (a *Admin) renderEndpointsPage(w http.ResponseWriter, data endpointsPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/endpoints.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render endpoints page", "error", err)
	}
}

// renderEndpointsList renders the endpoints list partial. Endpoint
// descriptions are markdown, converted to HTML here.
func (a *Admin) renderEndpointsList(w http.ResponseWriter, endpoints []*store.Endpoint, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/endpoints_list.html"))

	items := make([]endpointItem, 0, len(endpoints))
	for _, ep := range endpoints {
		items = append(items, endpointItem{
			Endpoint:        ep,
			DescriptionHTML: a.renderMarkdown(ep.Description),
		})
	}

	data := endpointsListData{
		Endpoints: items,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render endpoints list", "error", err)
	}
}

// renderAccountPage renders the account page
func (a *Admin) renderAccountPage(w http.ResponseWriter, data accountPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/account.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render account page", "error", err)
	}
}

// renderEndpointDetail renders the endpoint detail and edit page
func (a *Admin) renderEndpointDetail(w http.ResponseWriter, data endpointDetailData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/endpoint_detail.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render endpoint detail", "error", err)
	}
}

// renderMarkdown converts endpoint description markdown to HTML.
// Falls back to empty output if conversion fails.
func (a *Admin) renderMarkdown(source string) template.HTML {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		a.logger.Warn("failed to render markdown", "error", err)
		return ""
	}
	return template.HTML(buf.String())
}

// renderDeliveriesPage renders the deliveries page
func (a *Admin) renderDeliveriesPage(w http.ResponseWriter, data deliveriesPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/deliveries.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render deliveries page", "error", err)
	}
}

// renderDeliveriesList renders the deliveries list partial
func (a *Admin) renderDeliveriesList(w http.ResponseWriter, deliveries []*store.Delivery) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/deliveries_list.html"))

	data := deliveriesListData{
		Deliveries: deliveries,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render deliveries list", "error", err)
	}
}

// renderDeliveryDetail renders a single delivery log entry
func (a *Admin) renderDeliveryDetail(w http.ResponseWriter, data deliveryDetailData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/delivery_detail.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render delivery detail", "error", err)
	}
}

// renderBansPage renders the ban rules page
func (a *Admin) renderBansPage(w http.ResponseWriter, data bansPageData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/bans.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render bans page", "error", err)
	}
}

// renderBansList renders the ban rules list partial
func (a *Admin) renderBansList(w http.ResponseWriter, rules []*store.BanRule, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/partials/bans_list.html"))

	data := bansListData{
		Rules:     rules,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render bans list", "error", err)
	}
}
