package resolver

import (
	"context"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// Default cache lifetimes.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultNegativeTTL = time.Minute
)

// Options tune resolution policy.
type Options struct {
	// AllowUnverified lets active but unverified custom domains resolve.
	AllowUnverified bool
	// DevMode maps DevHosts to the first active tenant.
	DevMode  bool
	DevHosts []string

	TTL         time.Duration
	NegativeTTL time.Duration
}

// Resolver maps an inbound Host header to exactly one active tenant.
type Resolver struct {
	db      *gorm.DB
	cache   Cache
	opts    Options
	metrics *metrics.Metrics
}

// New creates a resolver. cache may be nil to always hit storage.
func New(db *gorm.DB, cache Cache, opts Options, m *metrics.Metrics) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	return &Resolver{db: db, cache: cache, opts: opts, metrics: m}
}

// Resolve returns the tenant serving host. A host that does not map to an
// active tenant yields a NotFound error wrapping ErrTenantNotFound; any
// other error is transient and is never cached.
func (r *Resolver) Resolve(ctx context.Context, hostHeader string) (*models.Tenant, error) {
	host := utils.NormalizeHost(hostHeader)
	if host == "" {
		r.metrics.ObserveLookup(metrics.ResultNotFound)
		return nil, notFound()
	}

	if r.cache != nil {
		entry, ok, err := r.cache.Get(ctx, host)
		if err != nil {
			logger.WarnEvent().Err(err).Str("host", host).Msg("Resolver cache read failed")
		} else if ok {
			r.metrics.ObserveLookup(metrics.ResultHit)
			if entry.Missing() {
				return nil, notFound()
			}
			return entry.Tenant, nil
		}
	}

	tenant, err := r.lookup(ctx, host)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			r.metrics.ObserveLookup(metrics.ResultNotFound)
			r.store(ctx, host, Entry{}, r.opts.NegativeTTL)
		} else {
			r.metrics.ObserveLookup(metrics.ResultError)
		}
		return nil, err
	}

	r.metrics.ObserveLookup(metrics.ResultMiss)
	r.store(ctx, host, Entry{Tenant: tenant}, r.opts.TTL)
	return tenant, nil
}

func (r *Resolver) lookup(ctx context.Context, host string) (*models.Tenant, error) {
	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("hostname = ?", host).
		First(&domain).Error
	if err != nil && !pkgerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(err, "failed to look up domain")
	}

	if err == nil {
		if !domain.Trusted(r.opts.AllowUnverified) {
			return nil, notFound()
		}
		return r.activeTenant(ctx, "id = ?", domain.TenantID)
	}

	if r.opts.DevMode && slices.Contains(r.opts.DevHosts, host) {
		return r.activeTenant(ctx, "1 = 1")
	}

	return nil, notFound()
}

// activeTenant loads the first active tenant matching query in creation
// order.
func (r *Resolver) activeTenant(ctx context.Context, query string, args ...interface{}) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Where("is_active = ?", true).
		Order("created_at ASC").
		First(&tenant).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound()
		}
		return nil, pkgerrors.Wrap(err, "failed to load tenant")
	}
	return &tenant, nil
}

func (r *Resolver) store(ctx context.Context, host string, entry Entry, ttl time.Duration) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, host, entry, ttl); err != nil {
		logger.WarnEvent().Err(err).Str("host", host).Msg("Resolver cache write failed")
	}
}

// Evict drops cached resolutions for hosts. It satisfies registry.Evictor.
func (r *Resolver) Evict(ctx context.Context, hosts ...string) {
	if r.cache == nil || len(hosts) == 0 {
		return
	}
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		normalized = append(normalized, utils.NormalizeHost(h))
	}
	if r.opts.DevMode {
		// Dev hosts follow whichever tenant is first active.
		normalized = append(normalized, r.opts.DevHosts...)
	}
	if err := r.cache.Delete(ctx, normalized...); err != nil {
		logger.WarnEvent().Err(err).Strs("hosts", normalized).Msg("Resolver cache eviction failed")
	}
}

func notFound() error {
	return pkgerrors.NotFound("tenant not found", pkgerrors.ErrTenantNotFound)
}
