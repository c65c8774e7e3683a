package scope

import (
	"context"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
)

// Membership is an account's binding to one tenant.
type Membership struct {
	TenantID uuid.UUID
	Role     models.Role
}

// Viewer is the account acting on a request. Superadmins have no
// membership; every other account has exactly one.
type Viewer struct {
	UserID     uuid.UUID
	Username   string
	SuperAdmin bool
	Membership *Membership
}

// ViewerFromUser builds a viewer from a user loaded with its profile.
func ViewerFromUser(u *models.User) Viewer {
	v := Viewer{UserID: u.ID, Username: u.Username, SuperAdmin: u.IsSuperAdmin}
	if u.Profile != nil && u.Profile.TenantID != nil {
		v.Membership = &Membership{TenantID: *u.Profile.TenantID, Role: u.Profile.Role}
	}
	return v
}

// TenantID returns the viewer's tenant, if it has one.
func (v Viewer) TenantID() (uuid.UUID, bool) {
	if v.Membership == nil {
		return uuid.Nil, false
	}
	return v.Membership.TenantID, true
}

// Role returns the membership role, or "" without a membership.
func (v Viewer) Role() models.Role {
	if v.Membership == nil {
		return ""
	}
	return v.Membership.Role
}

// Can reports whether the viewer holds at least role within tenantID.
// Superadmins can do anything anywhere.
func (v Viewer) Can(tenantID uuid.UUID, role models.Role) bool {
	if v.SuperAdmin {
		return true
	}
	if v.Membership == nil || v.Membership.TenantID != tenantID {
		return false
	}
	return v.Membership.Role.Includes(role)
}

type ctxKey int

const (
	tenantKey ctxKey = iota
	viewerKey
)

// WithTenant attaches the request's resolved tenant to ctx.
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantFrom returns the tenant resolved for this request.
func TenantFrom(ctx context.Context) (*models.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*models.Tenant)
	return t, ok && t != nil
}

// WithViewer attaches the acting account to ctx.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFrom returns the acting account.
func ViewerFrom(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(Viewer)
	return v, ok
}
