package site

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"regexp"
	"time"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/assets"
	"github.com/pandeptwidyaop/multisite/internal/server/errorpages"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	"github.com/pandeptwidyaop/multisite/internal/server/scope"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

var (
	homeTemplate = template.Must(template.ParseFS(templatesFS, "templates/home.html"))
	hexColor     = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	fontFamily   = regexp.MustCompile(`^[A-Za-z0-9 ,'-]{1,100}$`)
)

// Asset names looked up for every page.
const (
	assetLogo       = "logo.png"
	assetFavicon    = "favicon.ico"
	assetStylesheet = "css/site.css"
)

// Handler renders the public site of the tenant resolved for the request.
// It must run behind the tenant resolution middleware.
type Handler struct {
	registry *registry.Registry
	sections *scope.Repo[models.Section, *models.Section]
	services *scope.Repo[models.Service, *models.Service]
	assets   *assets.Resolver
	now      func() time.Time
}

// NewHandler creates the site handler. assetResolver may be nil when no
// asset tree is configured.
func NewHandler(db *gorm.DB, reg *registry.Registry, assetResolver *assets.Resolver) *Handler {
	return &Handler{
		registry: reg,
		sections: scope.NewRepo[models.Section](db, "position ASC"),
		services: scope.NewRepo[models.Service](db, "position ASC"),
		assets:   assetResolver,
		now:      time.Now,
	}
}

// RegisterRoutes mounts the site on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /assets/{path...}", h.serveAsset)
	mux.HandleFunc("GET /{$}", h.home)
}

type pageData struct {
	Tenant         *models.Tenant
	Settings       *models.TenantSettings
	Sections       []models.Section
	Services       []models.Service
	PrimaryColor   template.CSS
	SecondaryColor template.CSS
	FontFamily     template.CSS
	Logo           string
	Favicon        string
	Stylesheet     string
	Year           int
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	tenant, ok := scope.TenantFrom(r.Context())
	if !ok {
		errorpages.NotFound(w, r.Host)
		return
	}
	if !tenant.SetupFeePaid {
		errorpages.NotPaid(w, tenant.Name)
		return
	}

	ctx := r.Context()
	settings, err := h.registry.EnsureSettings(ctx, tenant.ID)
	if err != nil {
		errorpages.RenderError(w, err, nil)
		return
	}
	sections, err := h.sections.ForTenant(tenant).Active().List(ctx)
	if err != nil {
		errorpages.RenderError(w, err, nil)
		return
	}
	services, err := h.services.ForTenant(tenant).Active().List(ctx)
	if err != nil {
		errorpages.RenderError(w, err, nil)
		return
	}

	data := pageData{
		Tenant:         tenant,
		Settings:       settings,
		Sections:       sections,
		Services:       services,
		PrimaryColor:   cssValue(settings.PrimaryColor, hexColor, models.DefaultPrimaryColor),
		SecondaryColor: cssValue(settings.SecondaryColor, hexColor, models.DefaultSecondaryColor),
		FontFamily:     cssValue(settings.FontFamily, fontFamily, models.DefaultFontFamily),
		Logo:           settings.LogoURL,
		Favicon:        settings.FaviconURL,
		Year:           h.now().Year(),
	}
	if data.Logo == "" && h.assetExists(tenant, assetLogo) {
		data.Logo = "/assets/" + assetLogo
	}
	if data.Favicon == "" && h.assetExists(tenant, assetFavicon) {
		data.Favicon = "/assets/" + assetFavicon
	}
	if h.assetExists(tenant, assetStylesheet) {
		data.Stylesheet = "/assets/" + assetStylesheet
	}

	var buf bytes.Buffer
	if err := homeTemplate.Execute(&buf, data); err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("Failed to render site")
		errorpages.Render(w, errorpages.InternalError, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (h *Handler) assetExists(tenant *models.Tenant, name string) bool {
	return h.assets != nil && h.assets.Exists(tenant, name)
}

func (h *Handler) serveAsset(w http.ResponseWriter, r *http.Request) {
	tenant, ok := scope.TenantFrom(r.Context())
	if !ok || h.assets == nil {
		http.NotFound(w, r)
		return
	}

	name := r.PathValue("path")
	f, location, err := h.assets.Open(tenant, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Ctx(r.Context()).Warn().Err(err).Str("asset", name).Msg("Failed to open asset")
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(path.Ext(location)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	if seeker, ok := f.(io.ReadSeeker); ok {
		var modTime time.Time
		if info, err := f.Stat(); err == nil {
			modTime = info.ModTime()
		}
		http.ServeContent(w, r, path.Base(location), modTime, seeker)
		return
	}
	io.Copy(w, f)
}

func cssValue(value string, pattern *regexp.Regexp, fallback string) template.CSS {
	if pattern.MatchString(value) {
		return template.CSS(value)
	}
	return template.CSS(fallback)
}
