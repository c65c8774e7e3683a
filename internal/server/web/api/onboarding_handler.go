package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/errorpages"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

var onboardingTemplates = template.Must(template.ParseFS(templatesFS, "templates/onboarding.html"))

type onboardingRequest struct {
	CompanyName    string `json:"company_name"`
	Slug           string `json:"slug"`
	Theme          string `json:"theme"`
	Tagline        string `json:"tagline"`
	AboutText      string `json:"about_text"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	LogoURL        string `json:"logo_url"`
	ContactPhone   string `json:"contact_phone"`
	WhatsappNumber string `json:"whatsapp_number"`
}

func (req onboardingRequest) setupData() provision.SetupData {
	return provision.SetupData{
		CompanyName:    req.CompanyName,
		Slug:           req.Slug,
		Theme:          req.Theme,
		Tagline:        req.Tagline,
		AboutText:      req.AboutText,
		PrimaryColor:   req.PrimaryColor,
		SecondaryColor: req.SecondaryColor,
		LogoURL:        req.LogoURL,
		ContactPhone:   req.ContactPhone,
		WhatsappNumber: req.WhatsappNumber,
	}
}

type onboardingOrder struct {
	OrderNumber    string             `json:"order_number"`
	Status         models.OrderStatus `json:"status"`
	Email          string             `json:"email"`
	BuyerName      string             `json:"buyer_name,omitempty"`
	Plan           string             `json:"plan"`
	PlanName       string             `json:"plan_name"`
	Themes         []string           `json:"themes"`
	TokenExpiresAt *time.Time         `json:"token_expires_at,omitempty"`
}

func newOnboardingOrder(order *models.Order) onboardingOrder {
	out := onboardingOrder{
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		Email:          order.Email,
		BuyerName:      order.BuyerName,
		TokenExpiresAt: order.TokenExpiresAt,
		Themes:         []string{},
	}
	if order.Plan != nil {
		out.Plan = order.Plan.Slug
		out.PlanName = order.Plan.Name
		if themes := order.Plan.Themes(); len(themes) > 0 {
			out.Themes = themes
		}
	}
	return out
}

type onboardingResult struct {
	OrderNumber       string     `json:"order_number"`
	TenantID          string     `json:"tenant_id"`
	Slug              string     `json:"slug"`
	Hostname          string     `json:"hostname"`
	SiteURL           string     `json:"site_url"`
	Username          string     `json:"username"`
	InvitationToken   string     `json:"invitation_token"`
	InvitationExpires *time.Time `json:"invitation_expires_at,omitempty"`
}

func newOnboardingResult(res *provision.Result) onboardingResult {
	out := onboardingResult{
		OrderNumber:     res.Order.OrderNumber,
		TenantID:        res.Tenant.ID.String(),
		Slug:            res.Tenant.Slug,
		Hostname:        res.Domain.Hostname,
		SiteURL:         "https://" + res.Domain.Hostname,
		Username:        res.Owner.Username,
		InvitationToken: res.InvitationToken,
	}
	if res.Profile != nil {
		out.InvitationExpires = res.Profile.InvitationExpiresAt
	}
	return out
}

// getOnboarding validates the token and opens the onboarding step.
func (h *Handler) getOnboarding(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetForOnboarding(r.Context(), r.PathValue("token"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newOnboardingOrder(order))
}

// submitOnboarding provisions the tenant for the order behind the token.
func (h *Handler) submitOnboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.provisioner.Provision(r.Context(), r.PathValue("token"), req.setupData())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newOnboardingResult(result))
}

type onboardingView struct {
	Token       string
	OrderNumber string
	PlanName    string
	Themes      []string
	BaseDomain  string
	Form        onboardingRequest
	Error       string
	Field       string
}

type onboardingDoneView struct {
	onboardingResult
	InvitationExpires string
}

// onboardingPage serves the HTML form behind the onboarding link. Token
// problems get the status page for their cause.
func (h *Handler) onboardingPage(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	order, err := h.orders.GetForOnboarding(r.Context(), token)
	if err != nil {
		errorpages.RenderError(w, err, nil)
		return
	}
	h.renderForm(w, http.StatusOK, token, order, onboardingRequest{}, nil)
}

func (h *Handler) onboardingForm(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		errorpages.Render(w, errorpages.BadRequest, nil)
		return
	}
	req := onboardingRequest{
		CompanyName:    r.PostForm.Get("company_name"),
		Slug:           r.PostForm.Get("slug"),
		Theme:          r.PostForm.Get("theme"),
		Tagline:        r.PostForm.Get("tagline"),
		AboutText:      r.PostForm.Get("about_text"),
		PrimaryColor:   r.PostForm.Get("primary_color"),
		SecondaryColor: r.PostForm.Get("secondary_color"),
		ContactPhone:   r.PostForm.Get("contact_phone"),
		WhatsappNumber: r.PostForm.Get("whatsapp_number"),
	}

	ctx := r.Context()
	result, err := h.provisioner.Provision(ctx, token, req.setupData())
	if err != nil {
		// Input problems go back to the form; anything about the token
		// itself gets its status page.
		if pkgerrors.IsValidation(err) || pkgerrors.IsConflict(err) {
			order, orderErr := h.orders.CheckProvisionable(ctx, token)
			if orderErr != nil {
				errorpages.RenderError(w, orderErr, nil)
				return
			}
			h.renderForm(w, statusFor(err), token, order, req, err)
			return
		}
		errorpages.RenderError(w, err, nil)
		return
	}

	view := onboardingDoneView{onboardingResult: newOnboardingResult(result)}
	if view.onboardingResult.InvitationExpires != nil {
		view.InvitationExpires = view.onboardingResult.InvitationExpires.Format("02-01-2006 15:04")
	}
	renderTemplate(w, http.StatusCreated, "done", view)
}

func (h *Handler) renderForm(w http.ResponseWriter, status int, token string, order *models.Order, form onboardingRequest, err error) {
	view := onboardingView{
		Token:       token,
		OrderNumber: order.OrderNumber,
		BaseDomain:  h.registry.BaseDomain(),
		Form:        form,
	}
	if order.Plan != nil {
		view.PlanName = order.Plan.Name
		view.Themes = order.Plan.Themes()
	}
	if appErr, ok := pkgerrors.As(err); ok {
		view.Error = appErr.Message
		view.Field = appErr.Field
	}
	renderTemplate(w, status, "form", view)
}

func renderTemplate(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := onboardingTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorEvent().Err(err).Str("template", name).Msg("Failed to render template")
		errorpages.Render(w, errorpages.InternalError, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
