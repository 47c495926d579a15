// Package catalog is CAT: the relational source of truth for tenants,
// repositories, distributions, components, packages and their rendered
// indexes, backed by Postgres.
package catalog

import (
	"time"

	"github.com/packhost/repod/internal/debctl"
)

// Tenant owns every other entity transitively.
type Tenant struct {
	ID          string
	DisplayName string
	Subdomain   string
}

// Repository is a named collection of distributions under a tenant.
type Repository struct {
	ID        string
	TenantID  string
	Name      string
	S3Bucket  string
	S3Prefix  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Distribution is one APT release channel within a repository.
type Distribution struct {
	ID           string
	RepositoryID string
	Distribution string
	Suite        string
	Codename     string
	Origin       string
	Label        string
	Version      string
	Description  string
	Contents     []byte
	Clearsigned  []byte
	Detached     []byte
	UpdatedAt    time.Time
}

// Component is a partition within a distribution (e.g. "main").
type Component struct {
	ID        string
	ReleaseID string
	Name      string
}

// Package is a content-addressed .deb payload belonging to a tenant.
type Package struct {
	ID           string
	TenantID     string
	S3Bucket     string
	Name         string
	Version      string
	Architecture string
	Paragraph    debctl.Paragraph
	Size         int64
	MD5Sum       string
	SHA1Sum      string
	SHA256Sum    string
	CreatedAt    time.Time
}

// ComponentPackage is the junction placing a package under a component at a
// specific pool path.
type ComponentPackage struct {
	ComponentID string
	PackageID   string
	Filename    string
}

// PackagesIndex is the last-rendered Packages index for a (component,
// architecture) pair.
type PackagesIndex struct {
	ComponentID  string
	Architecture string
	Size         int64
	MD5Sum       string
	SHA1Sum      string
	SHA256Sum    string
	Contents     []byte
	UpdatedAt    time.Time
}

// ByHashObject tracks a historical by-hash copy so it can be expired.
type ByHashObject struct {
	Bucket       string
	Key          string
	SHA256       string
	SupersededAt *time.Time
	ExpiresAt    *time.Time
}
