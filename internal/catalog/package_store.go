package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/packhost/repod/internal/apierr"
	"github.com/packhost/repod/internal/debctl"
)

// UpsertPackage inserts a new Package row or returns the existing one keyed
// by (tenant, sha256). It fails PackageConflict if a package with the same
// (tenant, name, version, architecture) already exists with a different
// sha256sum, enforcing spec invariant 4.
//
// The identity check and the insert run inside one serializable transaction
// (spec §3 invariant 5 lists "package insert" among the mutations that must
// be isolated this way): two concurrent uploads of the same identity triple
// can no longer both pass the check and both insert, since the second
// transaction's view is taken before the first commits and Postgres aborts
// it with 40001 on conflict rather than letting it read stale state.
func (s *Store) UpsertPackage(ctx context.Context, tenantID string, paragraph debctl.Paragraph, name, version, architecture string, size int64, md5sum, sha1sum, sha256sum, bucket string) (Package, error) {
	var existing Package
	err := s.scanPackageBySHA256(ctx, tenantID, sha256sum, &existing)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return Package{}, err
	}

	paragraphJSON, err := json.Marshal(paragraph)
	if err != nil {
		return Package{}, apierr.Wrap(apierr.CouldNotParse, "encoding control paragraph", err)
	}

	p := Package{
		ID:           newID("pkg"),
		TenantID:     tenantID,
		S3Bucket:     bucket,
		Name:         name,
		Version:      version,
		Architecture: architecture,
		Paragraph:    paragraph,
		Size:         size,
		MD5Sum:       md5sum,
		SHA1Sum:      sha1sum,
		SHA256Sum:    sha256sum,
	}

	err = s.WithSerializableTx(ctx, func(tx *sql.Tx) error {
		var conflictSHA string
		checkErr := tx.QueryRowContext(ctx, `
			SELECT sha256sum FROM package
			WHERE tenant_id = $1 AND name = $2 AND version = $3 AND architecture = $4
		`, tenantID, name, version, architecture).Scan(&conflictSHA)
		if checkErr == nil && conflictSHA != sha256sum {
			return apierr.Newf(apierr.PackageConflict,
				"package %s %s %s already exists with a different sha256", name, version, architecture)
		}
		if checkErr != nil && checkErr != sql.ErrNoRows {
			return apierr.Wrap(apierr.DatabaseError, "checking package identity", checkErr)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO package (id, tenant_id, s3_bucket, name, version, architecture, paragraph, size, md5sum, sha1sum, sha256sum, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		`, p.ID, p.TenantID, p.S3Bucket, p.Name, p.Version, p.Architecture, paragraphJSON, p.Size, p.MD5Sum, p.SHA1Sum, p.SHA256Sum)
		if err != nil {
			return apierr.Wrap(apierr.DatabaseError, "inserting package", err)
		}
		return nil
	})
	if err != nil {
		return Package{}, err
	}
	return p, nil
}

func (s *Store) scanPackageBySHA256(ctx context.Context, tenantID, sha256sum string, out *Package) error {
	var paragraphJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, s3_bucket, name, version, architecture, paragraph, size, md5sum, sha1sum, sha256sum, created_at
		FROM package WHERE tenant_id = $1 AND sha256sum = $2
	`, tenantID, sha256sum).Scan(&out.ID, &out.TenantID, &out.S3Bucket, &out.Name, &out.Version, &out.Architecture,
		&paragraphJSON, &out.Size, &out.MD5Sum, &out.SHA1Sum, &out.SHA256Sum, &out.CreatedAt)
	if err == sql.ErrNoRows {
		return apierr.Newf(apierr.PackageNotFound, "package with sha256 %q not found", sha256sum)
	}
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "loading package", err)
	}
	if err := json.Unmarshal(paragraphJSON, &out.Paragraph); err != nil {
		return apierr.Wrap(apierr.DatabaseError, "decoding control paragraph", err)
	}
	return nil
}

func isNotFound(err error) bool {
	apiErr, ok := apierr.As(err)
	return ok && apiErr.Code == apierr.PackageNotFound
}

// GetPackageBySHA256 resolves a package by its content hash, scoped to tenant.
func (s *Store) GetPackageBySHA256(ctx context.Context, tenantID, sha256sum string) (Package, error) {
	var p Package
	err := s.scanPackageBySHA256(ctx, tenantID, sha256sum, &p)
	return p, err
}

// GetPackageByIdentity resolves a package by (tenant, name, version, arch),
// used by the Remove action of PackageChange.
func (s *Store) GetPackageByIdentity(ctx context.Context, tenantID, name, version, architecture string) (Package, error) {
	var sha string
	err := s.db.QueryRowContext(ctx, `
		SELECT sha256sum FROM package
		WHERE tenant_id = $1 AND name = $2 AND version = $3 AND architecture = $4
	`, tenantID, name, version, architecture).Scan(&sha)
	if err == sql.ErrNoRows {
		return Package{}, apierr.Newf(apierr.PackageNotFound, "package %s %s %s not found", name, version, architecture)
	}
	if err != nil {
		return Package{}, apierr.Wrap(apierr.DatabaseError, "looking up package identity", err)
	}
	return s.GetPackageBySHA256(ctx, tenantID, sha)
}

// ListPackages supports the GET /packages query filters. Any empty filter
// is ignored.
func (s *Store) ListPackages(ctx context.Context, tenantID string, filter PackageFilter) ([]Package, error) {
	query := `
		SELECT DISTINCT pkg.id, pkg.tenant_id, pkg.s3_bucket, pkg.name, pkg.version, pkg.architecture,
			pkg.paragraph, pkg.size, pkg.md5sum, pkg.sha1sum, pkg.sha256sum, pkg.created_at
		FROM package pkg
	`
	args := []any{tenantID}
	where := []string{"pkg.tenant_id = $1"}
	joinComponentPackages := false

	if filter.Repository != "" || filter.Distribution != "" || filter.Component != "" {
		joinComponentPackages = true
	}
	if joinComponentPackages {
		query += `
		JOIN component_package cp ON cp.package_id = pkg.id
		JOIN component comp ON comp.id = cp.component_id
		JOIN distribution dist ON dist.id = comp.release_id
		JOIN repository repo ON repo.id = dist.repository_id
		`
		if filter.Repository != "" {
			args = append(args, filter.Repository)
			where = append(where, "repo.name = $"+strconv.Itoa(len(args)))
		}
		if filter.Distribution != "" {
			args = append(args, filter.Distribution)
			where = append(where, "dist.distribution = $"+strconv.Itoa(len(args)))
		}
		if filter.Component != "" {
			args = append(args, filter.Component)
			where = append(where, "comp.name = $"+strconv.Itoa(len(args)))
		}
	}
	if filter.Name != "" {
		args = append(args, filter.Name)
		where = append(where, "pkg.name = $"+strconv.Itoa(len(args)))
	}
	if filter.Version != "" {
		args = append(args, filter.Version)
		where = append(where, "pkg.version = $"+strconv.Itoa(len(args)))
	}
	if filter.Architecture != "" {
		args = append(args, filter.Architecture)
		where = append(where, "pkg.architecture = $"+strconv.Itoa(len(args)))
	}

	query += " WHERE " + strings.Join(where, " AND ") + " ORDER BY pkg.name, pkg.version, pkg.architecture"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "listing packages", err)
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		var p Package
		var paragraphJSON []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.S3Bucket, &p.Name, &p.Version, &p.Architecture,
			&paragraphJSON, &p.Size, &p.MD5Sum, &p.SHA1Sum, &p.SHA256Sum, &p.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning package", err)
		}
		if err := json.Unmarshal(paragraphJSON, &p.Paragraph); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "decoding control paragraph", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PackageFilter narrows ListPackages, mirroring the query parameters of
// GET /packages.
type PackageFilter struct {
	Repository   string
	Distribution string
	Component    string
	Name         string
	Version      string
	Architecture string
}

