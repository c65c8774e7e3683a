package scope

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

// ForTenant restricts a query to rows owned by tenantID. The zero id
// matches nothing.
func ForTenant(tenantID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			return db.Where("1 = 0")
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}

// Active restricts a query to visible rows.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

// Repo gives access to one tenant-owned entity type. Reads always go
// through a Collection, which cannot be built without a tenant.
type Repo[T any, PT interface {
	*T
	models.TenantOwned
}] struct {
	db    *gorm.DB
	order string
}

// NewRepo creates a repository. order is the default ORDER BY clause.
func NewRepo[T any, PT interface {
	*T
	models.TenantOwned
}](db *gorm.DB, order string) *Repo[T, PT] {
	if order == "" {
		order = "created_at ASC"
	}
	return &Repo[T, PT]{db: db, order: order}
}

// For returns the rows owned by tenantID.
func (r *Repo[T, PT]) For(tenantID uuid.UUID) *Collection[T, PT] {
	return &Collection[T, PT]{repo: r, tenantID: tenantID}
}

// ForTenant is For with an optional tenant; nil yields the empty collection.
func (r *Repo[T, PT]) ForTenant(tenant *models.Tenant) *Collection[T, PT] {
	if tenant == nil {
		return r.For(uuid.Nil)
	}
	return r.For(tenant.ID)
}

// Create stores record for the viewer. A record without a tenant is
// assigned the viewer's own tenant, but only for non-superadmin viewers
// acting inside that tenant; superadmins must set it explicitly.
func (r *Repo[T, PT]) Create(ctx context.Context, v Viewer, record PT) error {
	target, err := writeTarget(ctx, v, record.OwnerID())
	if err != nil {
		return err
	}
	record.AssignTenant(target)

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to create record")
	}
	return nil
}

func writeTarget(ctx context.Context, v Viewer, explicit uuid.UUID) (uuid.UUID, error) {
	if v.SuperAdmin {
		if explicit == uuid.Nil {
			return uuid.Nil, pkgerrors.Validation("tenant_id", "tenant must be specified", pkgerrors.ErrTenantRequired)
		}
		return explicit, nil
	}

	own, ok := v.TenantID()
	if !ok || !v.Membership.Role.Includes(models.RoleEditor) {
		return uuid.Nil, pkgerrors.ErrForbidden
	}
	if explicit != uuid.Nil && explicit != own {
		return uuid.Nil, pkgerrors.ErrForbidden
	}
	if reqTenant, ok := TenantFrom(ctx); ok && reqTenant.ID != own {
		return uuid.Nil, pkgerrors.ErrForbidden
	}
	return own, nil
}

// Collection is a tenant-scoped view over a repository.
type Collection[T any, PT interface {
	*T
	models.TenantOwned
}] struct {
	repo       *Repo[T, PT]
	tenantID   uuid.UUID
	activeOnly bool
}

// Active narrows the collection to visible rows.
func (c *Collection[T, PT]) Active() *Collection[T, PT] {
	return &Collection[T, PT]{repo: c.repo, tenantID: c.tenantID, activeOnly: true}
}

// TenantID returns the owning tenant of the collection.
func (c *Collection[T, PT]) TenantID() uuid.UUID {
	return c.tenantID
}

func (c *Collection[T, PT]) query(ctx context.Context) *gorm.DB {
	q := c.repo.db.WithContext(ctx).Model(PT(new(T))).Scopes(ForTenant(c.tenantID))
	if c.activeOnly {
		q = q.Scopes(Active)
	}
	return q
}

// List returns every row of the collection.
func (c *Collection[T, PT]) List(ctx context.Context) ([]T, error) {
	var rows []T
	if err := c.query(ctx).Order(c.repo.order).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list records")
	}
	return rows, nil
}

// Get returns the row with id if it belongs to the collection.
func (c *Collection[T, PT]) Get(ctx context.Context, id uuid.UUID) (PT, error) {
	var zero PT
	record := PT(new(T))
	if err := c.query(ctx).Where("id = ?", id).First(record).Error; err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return zero, pkgerrors.NotFound("record not found", err)
		}
		return zero, pkgerrors.Wrap(err, "failed to get record")
	}
	return record, nil
}

// Count returns the number of rows in the collection.
func (c *Collection[T, PT]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.query(ctx).Count(&n).Error; err != nil {
		return 0, pkgerrors.Wrap(err, "failed to count records")
	}
	return n, nil
}

// Delete removes the row with id if it belongs to the collection.
func (c *Collection[T, PT]) Delete(ctx context.Context, id uuid.UUID) error {
	result := c.repo.db.WithContext(ctx).
		Scopes(ForTenant(c.tenantID)).
		Where("id = ?", id).
		Delete(PT(new(T)))
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to delete record")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.NotFound("record not found", gorm.ErrRecordNotFound)
	}
	return nil
}
