package assets

import (
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
)

// Default layout of the asset tree.
const (
	TenantsDir    = "tenants"
	DefaultBucket = "_default"
)

// Resolver maps a logical asset name to the file serving it for a tenant.
// It only reads the file system and can be called speculatively.
type Resolver struct {
	fsys   fs.FS
	bucket string
}

// New creates a resolver over fsys. bucket names the shared directory under
// TenantsDir used when a tenant has no override; empty means DefaultBucket.
func New(fsys fs.FS, bucket string) *Resolver {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Resolver{fsys: fsys, bucket: bucket}
}

// NewDir creates a resolver over a directory on disk.
func NewDir(root, bucket string) *Resolver {
	return New(os.DirFS(root), bucket)
}

// FS returns the underlying file system.
func (r *Resolver) FS() fs.FS {
	return r.fsys
}

// Resolve returns the location of name for tenant: the tenant's own
// override, then the shared bucket, then fallback. ok is false when
// fallback was returned. A nil tenant skips the override.
func (r *Resolver) Resolve(tenant *models.Tenant, name, fallback string) (location string, ok bool) {
	clean, valid := cleanName(name)
	if !valid {
		return fallback, false
	}
	for _, candidate := range r.candidates(tenant, clean) {
		if r.isFile(candidate) {
			return candidate, true
		}
	}
	return fallback, false
}

// Exists reports whether name resolves without falling back.
func (r *Resolver) Exists(tenant *models.Tenant, name string) bool {
	_, ok := r.Resolve(tenant, name, "")
	return ok
}

// Open resolves name and opens it. A name that does not resolve yields an
// error satisfying errors.Is(err, fs.ErrNotExist).
func (r *Resolver) Open(tenant *models.Tenant, name string) (fs.File, string, error) {
	location, ok := r.Resolve(tenant, name, "")
	if !ok {
		return nil, "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	f, err := r.fsys.Open(location)
	if err != nil {
		return nil, "", err
	}
	return f, location, nil
}

func (r *Resolver) candidates(tenant *models.Tenant, name string) []string {
	out := make([]string, 0, 2)
	if tenant != nil && tenant.Slug != "" && tenant.Slug != r.bucket {
		out = append(out, path.Join(TenantsDir, tenant.Slug, name))
	}
	return append(out, path.Join(TenantsDir, r.bucket, name))
}

func (r *Resolver) isFile(location string) bool {
	info, err := fs.Stat(r.fsys, location)
	return err == nil && !info.IsDir()
}

// cleanName rejects names escaping the asset tree.
func cleanName(name string) (string, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "", false
	}
	clean := path.Clean(name)
	if !fs.ValidPath(clean) || clean == "." {
		return "", false
	}
	return clean, true
}
