package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// pathID parses the {id} path value.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))
	tenants, err := h.registry.List(r.Context(), registry.ListFilter{
		ActiveOnly: activeOnly,
		Search:     q.Get("search"),
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tenants)
}

type createTenantRequest struct {
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Domain         string   `json:"domain"`
	ExtraDomains   []string `json:"extra_domains"`
	Template       string   `json:"template"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	PrimaryColor   string   `json:"primary_color"`
	SecondaryColor string   `json:"secondary_color"`
	SetupFeePaid   bool     `json:"setup_fee_paid"`
	NoContent      bool     `json:"no_content"`
	NoOwner        bool     `json:"no_owner"`
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.provisioner.CreateTenant(r.Context(), provision.TenantRequest{
		Name:           req.Name,
		Slug:           req.Slug,
		Domain:         req.Domain,
		ExtraDomains:   req.ExtraDomains,
		Template:       models.Template(req.Template),
		Email:          req.Email,
		Phone:          req.Phone,
		Username:       req.Username,
		Password:       req.Password,
		PrimaryColor:   req.PrimaryColor,
		SecondaryColor: req.SecondaryColor,
		SetupFeePaid:   req.SetupFeePaid,
		NoContent:      req.NoContent,
		NoOwner:        req.NoOwner,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"tenant":   result.Tenant,
		"domains":  result.Domains,
		"sections": result.Sections,
		"services": result.Services,
	}
	if result.Owner != nil {
		resp["owner"] = result.Owner.Username
	}
	if result.InvitationToken != "" {
		resp["invitation_token"] = result.InvitationToken
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tenant, err := h.registry.FindByID(r.Context(), id)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}

func (h *Handler) setTenantActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.registry.SetActive(r.Context(), id, req.Active); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": req.Active})
}

func (h *Handler) markSetupFeePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.MarkSetupFeePaid(r.Context(), id); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "setup_fee_paid": true})
}

type domainResponse struct {
	models.Domain
	VerificationToken string `json:"verification_token,omitempty"`
}

func (h *Handler) addDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Hostname string `json:"hostname"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if _, err := h.registry.FindByID(ctx, id); err != nil {
		respondAppError(w, r, err)
		return
	}
	domain, err := h.registry.AddDomain(ctx, id, req.Hostname)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, domainResponse{Domain: *domain, VerificationToken: domain.VerificationToken})
}

func (h *Handler) verifyDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	domain, err := h.registry.VerifyDomain(r.Context(), id, req.Token)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, domain)
}

func (h *Handler) setPrimaryDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.SetPrimary(r.Context(), id); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_primary": true})
}

func (h *Handler) setDomainActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.registry.SetDomainActive(r.Context(), id, req.Active); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": req.Active})
}

// dashboardTenant returns the tenant a dashboard request acts on: the
// member's own tenant, or for superadmins the tenant_id query parameter.
func (h *Handler) dashboardTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	viewer := claims.Viewer()
	if !viewer.SuperAdmin {
		own, ok := viewer.TenantID()
		if !ok {
			respondAppError(w, r, pkgerrors.ErrForbidden)
			return uuid.Nil, false
		}
		return own, true
	}

	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondAppError(w, r, pkgerrors.Validation("tenant_id", "invalid tenant id", err))
			return uuid.Nil, false
		}
		return id, true
	}
	respondAppError(w, r, pkgerrors.Validation("tenant_id", "tenant must be specified", pkgerrors.ErrTenantRequired))
	return uuid.Nil, false
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.dashboardTenant(w, r)
	if !ok {
		return
	}
	settings, err := h.registry.EnsureSettings(r.Context(), tenantID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	FontFamily     string `json:"font_family"`
	LogoURL        string `json:"logo_url"`
	ContactEmail   string `json:"contact_email"`
	ContactPhone   string `json:"contact_phone"`
	Address        string `json:"address"`
	WhatsappNumber string `json:"whatsapp_number"`
	FacebookURL    string `json:"facebook_url"`
	InstagramURL   string `json:"instagram_url"`
	LinkedinURL    string `json:"linkedin_url"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.dashboardTenant(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for field, color := range map[string]string{"primary_color": req.PrimaryColor, "secondary_color": req.SecondaryColor} {
		if color != "" && !provision.IsHexColor(color) {
			respondAppError(w, r, pkgerrors.Validation(field, "color must look like #rrggbb", nil))
			return
		}
	}

	ctx := r.Context()
	if _, err := h.registry.FindByID(ctx, tenantID); err != nil {
		respondAppError(w, r, err)
		return
	}
	settings, err := h.registry.UpdateSettings(ctx, tenantID, registry.SettingsUpdate{
		PrimaryColor:   req.PrimaryColor,
		SecondaryColor: req.SecondaryColor,
		FontFamily:     req.FontFamily,
		LogoURL:        req.LogoURL,
		ContactEmail:   req.ContactEmail,
		ContactPhone:   req.ContactPhone,
		Address:        req.Address,
		WhatsappNumber: req.WhatsappNumber,
		FacebookURL:    req.FacebookURL,
		InstagramURL:   req.InstagramURL,
		LinkedinURL:    req.LinkedinURL,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	logger.InfoEvent().Str("tenant_id", tenantID.String()).Msg("Tenant settings updated")
	respondJSON(w, http.StatusOK, settings)
}
