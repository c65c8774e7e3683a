package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/scope"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

func (h *Handler) sectionRepo() *scope.Repo[models.Section, *models.Section] {
	return scope.NewRepo[models.Section](h.db, "position ASC")
}

func (h *Handler) serviceRepo() *scope.Repo[models.Service, *models.Service] {
	return scope.NewRepo[models.Service](h.db, "position ASC")
}

func (h *Handler) listSections(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.dashboardTenant(w, r)
	if !ok {
		return
	}
	sections, err := h.sectionRepo().For(tenantID).List(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sections)
}

type sectionRequest struct {
	TenantID   *uuid.UUID         `json:"tenant_id"`
	Type       models.SectionType `json:"type"`
	Title      string             `json:"title"`
	Subtitle   string             `json:"subtitle"`
	Content    string             `json:"content"`
	ButtonText string             `json:"button_text"`
	ButtonURL  string             `json:"button_url"`
	Position   int                `json:"position"`
	IsActive   *bool              `json:"is_active"`
}

// createSection stores a section for the caller's tenant. Members always
// write to their own tenant; superadmins must name one.
func (h *Handler) createSection(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Type.IsValid() {
		respondAppError(w, r, pkgerrors.Validation("type", "unknown section type", nil))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondAppError(w, r, pkgerrors.Validation("title", "title is required", nil))
		return
	}

	section := &models.Section{
		Type:       req.Type,
		Title:      strings.TrimSpace(req.Title),
		Subtitle:   req.Subtitle,
		Content:    req.Content,
		ButtonText: req.ButtonText,
		ButtonURL:  req.ButtonURL,
		Position:   req.Position,
		IsActive:   req.IsActive == nil || *req.IsActive,
	}
	if req.TenantID != nil {
		section.TenantID = *req.TenantID
	}

	viewer := middleware.GetClaimsFromContext(r.Context()).Viewer()
	if err := h.sectionRepo().Create(r.Context(), viewer, section); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, section)
}

func (h *Handler) deleteSection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.dashboardTenant(w, r)
	if !ok {
		return
	}
	if err := h.sectionRepo().For(tenantID).Delete(r.Context(), id); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Section deleted"})
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.dashboardTenant(w, r)
	if !ok {
		return
	}
	services, err := h.serviceRepo().For(tenantID).List(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, services)
}

type serviceRequest struct {
	TenantID    *uuid.UUID `json:"tenant_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Position    int        `json:"position"`
	IsFeatured  bool       `json:"is_featured"`
	IsActive    *bool      `json:"is_active"`
}

// createService stores a service, holding the tenant to its plan's
// service quota.
func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondAppError(w, r, pkgerrors.Validation("name", "name is required", nil))
		return
	}

	ctx := r.Context()
	viewer := middleware.GetClaimsFromContext(ctx).Viewer()
	service := &models.Service{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Icon:        req.Icon,
		Position:    req.Position,
		IsFeatured:  req.IsFeatured,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if req.TenantID != nil {
		service.TenantID = *req.TenantID
	}

	target := service.TenantID
	if own, ok := viewer.TenantID(); ok && !viewer.SuperAdmin {
		target = own
	}
	if target != uuid.Nil {
		tenant, err := h.registry.FindByID(ctx, target)
		if err != nil {
			respondAppError(w, r, err)
			return
		}
		if tenant.MaxServices > 0 {
			count, err := h.serviceRepo().For(target).Count(ctx)
			if err != nil {
				respondAppError(w, r, err)
				return
			}
			if count >= int64(tenant.MaxServices) {
				respondAppError(w, r, pkgerrors.Validation("name", "service limit of the plan reached", nil))
				return
			}
		}
	}

	if err := h.serviceRepo().Create(ctx, viewer, service); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, service)
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tenantID, ok := h.dashboardTenant(w, r)
	if !ok {
		return
	}
	if err := h.serviceRepo().For(tenantID).Delete(r.Context(), id); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Service deleted"})
}
