package errorpages

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"sync"

	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page identifies an error page template.
type Page string

const (
	TenantNotFound  Page = "tenant_not_found.html"
	PaymentRequired Page = "payment_required.html"
	LinkExpired     Page = "link_expired.html"
	OrderCompleted  Page = "order_completed.html"
	WrongStatus     Page = "wrong_status.html"
	BadRequest      Page = "bad_request.html"
	BadGateway      Page = "bad_gateway.html"
	InternalError   Page = "internal_error.html"
)

var statusOf = map[Page]int{
	TenantNotFound:  http.StatusNotFound,
	PaymentRequired: http.StatusPaymentRequired,
	LinkExpired:     http.StatusGone,
	OrderCompleted:  http.StatusConflict,
	WrongStatus:     http.StatusConflict,
	BadRequest:      http.StatusBadRequest,
	BadGateway:      http.StatusBadGateway,
	InternalError:   http.StatusInternalServerError,
}

var (
	// Compiled once on first use
	templateCache = make(map[Page]*template.Template)
	cacheMu       sync.RWMutex
	initOnce      sync.Once
)

// Data holds dynamic values shown on error pages.
type Data struct {
	Host        string
	TenantName  string
	OrderNumber string
	Message     string
	ActionURL   string
	ActionText  string

	// Code is filled in by Render.
	Code int
}

func initTemplates() {
	initOnce.Do(func() {
		for page := range statusOf {
			tmpl, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+string(page))
			if err != nil {
				logger.ErrorEvent().
					Err(err).
					Str("template", string(page)).
					Msg("Failed to parse error template")
				continue
			}

			cacheMu.Lock()
			templateCache[page] = tmpl
			cacheMu.Unlock()
		}
	})
}

// StatusCode returns the HTTP status a page is served with.
func StatusCode(page Page) int {
	if code, ok := statusOf[page]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Render writes page with data.
func Render(w http.ResponseWriter, page Page, data *Data) {
	initTemplates()

	statusCode := StatusCode(page)

	cacheMu.RLock()
	tmpl, ok := templateCache[page]
	cacheMu.RUnlock()

	if !ok {
		logger.ErrorEvent().
			Str("template", string(page)).
			Msg("Error template not found in cache")
		http.Error(w, http.StatusText(statusCode), statusCode)
		return
	}

	if data == nil {
		data = &Data{}
	}
	data.Code = statusCode

	// Render to a buffer to avoid partial writes on error
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.ErrorEvent().
			Err(err).
			Str("template", string(page)).
			Msg("Failed to execute error template")
		http.Error(w, http.StatusText(statusCode), statusCode)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := buf.WriteTo(w); err != nil {
		logger.WarnEvent().
			Err(err).
			Msg("Failed to write error page to response")
	}
}

// PageFor picks the page describing err. Precondition failures get a page
// per reason so each cause has its own remediation text.
func PageFor(err error) Page {
	appErr, ok := pkgerrors.As(err)
	if !ok {
		return InternalError
	}
	switch appErr.Code {
	case pkgerrors.CodeNotFound:
		return TenantNotFound
	case pkgerrors.CodePrecondition:
		switch appErr.Reason {
		case pkgerrors.ReasonExpired:
			return LinkExpired
		case pkgerrors.ReasonCompleted:
			return OrderCompleted
		default:
			return WrongStatus
		}
	case pkgerrors.CodeValidation, pkgerrors.CodeConflict:
		return BadRequest
	case pkgerrors.CodeExternal:
		return BadGateway
	}
	return InternalError
}

// RenderError renders the page for err. Messages of unclassified errors
// are never shown.
func RenderError(w http.ResponseWriter, err error, data *Data) {
	page := PageFor(err)
	if data == nil {
		data = &Data{}
	}
	if page == BadRequest && data.Message == "" {
		if appErr, ok := pkgerrors.As(err); ok {
			data.Message = appErr.Message
		}
	}
	if page == InternalError {
		logger.ErrorEvent().Err(err).Msg("Unhandled error rendered as page")
	}
	Render(w, page, data)
}

// NotFound renders the page for a host that serves no tenant.
func NotFound(w http.ResponseWriter, host string) {
	Render(w, TenantNotFound, &Data{Host: host})
}

// NotPaid renders the page for a tenant whose setup fee is pending.
func NotPaid(w http.ResponseWriter, tenantName string) {
	Render(w, PaymentRequired, &Data{TenantName: tenantName})
}
