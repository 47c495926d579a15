package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"github.com/packhost/repod/internal/apierr"
)

// derivePrefix computes s3_prefix = tenant_id/SHA256(tenant_id/name), as
// specified in spec §3, grounded on
// original_source/packages/attune/src/server/repo/create.rs. It is computed
// once at creation and never rewritten, even if the repository is renamed.
func derivePrefix(tenantID, name string) string {
	sum := sha256.Sum256([]byte(tenantID + "/" + name))
	return tenantID + "/" + hex.EncodeToString(sum[:])
}

// CreateRepository inserts a new repository, scoping the uniqueness check to
// (tenant_id, name) per spec §3's stated invariant. This deliberately
// diverges from the original's apparent global name lookup (see DESIGN.md).
func (s *Store) CreateRepository(ctx context.Context, tenantID, name, bucket string) (Repository, error) {
	if !ValidRepositoryName(name) {
		return Repository{}, apierr.Newf(apierr.InvalidRepoName, "invalid repository name %q", name)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM repository WHERE tenant_id = $1 AND name = $2)
	`, tenantID, name).Scan(&exists)
	if err != nil {
		return Repository{}, apierr.Wrap(apierr.DatabaseError, "checking repository name", err)
	}
	if exists {
		return Repository{}, apierr.Newf(apierr.DistAlreadyExists, "repository %q already exists", name)
	}

	repo := Repository{
		ID:       newID("repo"),
		TenantID: tenantID,
		Name:     name,
		S3Bucket: bucket,
		S3Prefix: derivePrefix(tenantID, name),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repository (id, tenant_id, name, s3_bucket, s3_prefix, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, repo.ID, repo.TenantID, repo.Name, repo.S3Bucket, repo.S3Prefix)
	if err != nil {
		return Repository{}, apierr.Wrap(apierr.DatabaseError, "inserting repository", err)
	}
	return repo, nil
}

// GetRepository resolves a repository by (tenant, name).
func (s *Store) GetRepository(ctx context.Context, tenantID, name string) (Repository, error) {
	var r Repository
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, s3_bucket, s3_prefix, created_at, updated_at
		FROM repository WHERE tenant_id = $1 AND name = $2
	`, tenantID, name).Scan(&r.ID, &r.TenantID, &r.Name, &r.S3Bucket, &r.S3Prefix, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return Repository{}, apierr.Newf(apierr.RepoNotFound, "repository %q not found", name)
	}
	if err != nil {
		return Repository{}, apierr.Wrap(apierr.DatabaseError, "loading repository", err)
	}
	return r, nil
}

// ListRepositories returns every repository owned by tenantID.
func (s *Store) ListRepositories(ctx context.Context, tenantID string) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, s3_bucket, s3_prefix, created_at, updated_at
		FROM repository WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "listing repositories", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.S3Bucket, &r.S3Prefix, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning repository", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RenameRepository updates a repository's display name, leaving s3_prefix
// untouched (it is derived once at creation and never rewritten).
func (s *Store) RenameRepository(ctx context.Context, tenantID, name, newName string) (Repository, error) {
	if !ValidRepositoryName(newName) {
		return Repository{}, apierr.Newf(apierr.InvalidRepoName, "invalid repository name %q", newName)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE repository SET name = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name, newName)
	if err != nil {
		return Repository{}, apierr.Wrap(apierr.DatabaseError, "renaming repository", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Repository{}, apierr.Newf(apierr.RepoNotFound, "repository %q not found", name)
	}
	return s.GetRepository(ctx, tenantID, newName)
}

// DeleteRepository removes a repository row. Its distributions, components,
// component links and Packages indexes go with it through ON DELETE CASCADE
// foreign keys; package rows, by-hash rows and content-store objects are not
// removed by this call.
func (s *Store) DeleteRepository(ctx context.Context, tenantID, name string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM repository WHERE tenant_id = $1 AND name = $2
	`, tenantID, name)
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "deleting repository", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.Newf(apierr.RepoNotFound, "repository %q not found", name)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx. Methods that must
// participate in a caller-held serializable transaction take one of these
// explicitly instead of always reaching for the pool, so a single mutation
// sequence (e.g. SC's step 5) commits or rolls back as one unit.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateDistribution inserts a new distribution under repositoryID, run on
// the pool. Use CreateDistributionTx inside an existing transaction.
func (s *Store) CreateDistribution(ctx context.Context, repositoryID, distribution, suite, codename string) (Distribution, error) {
	return createDistribution(ctx, s.db, repositoryID, distribution, suite, codename)
}

// CreateDistributionTx is CreateDistribution run against an open transaction.
func (s *Store) CreateDistributionTx(ctx context.Context, tx *sql.Tx, repositoryID, distribution, suite, codename string) (Distribution, error) {
	return createDistribution(ctx, tx, repositoryID, distribution, suite, codename)
}

func createDistribution(ctx context.Context, q dbtx, repositoryID, distribution, suite, codename string) (Distribution, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM distribution WHERE repository_id = $1 AND distribution = $2)
	`, repositoryID, distribution).Scan(&exists)
	if err != nil {
		return Distribution{}, apierr.Wrap(apierr.DatabaseError, "checking distribution", err)
	}
	if exists {
		return Distribution{}, apierr.Newf(apierr.DistAlreadyExists, "distribution %q already exists", distribution)
	}

	d := Distribution{
		ID:           newID("dist"),
		RepositoryID: repositoryID,
		Distribution: distribution,
		Suite:        suite,
		Codename:     codename,
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO distribution (id, repository_id, distribution, suite, codename, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, d.ID, d.RepositoryID, d.Distribution, d.Suite, d.Codename)
	if err != nil {
		return Distribution{}, apierr.Wrap(apierr.DatabaseError, "inserting distribution", err)
	}
	return d, nil
}

// GetDistribution resolves a distribution by (repository, distribution
// name), run on the pool. Returns apierr.DistNotFound (not an error, per
// spec §4.4, when called in the Add path — callers there should tolerate a
// not-found result rather than propagate it). Use GetDistributionTx inside
// an existing transaction.
func (s *Store) GetDistribution(ctx context.Context, repositoryID, distribution string) (Distribution, error) {
	return getDistribution(ctx, s.db, repositoryID, distribution)
}

// GetDistributionTx is GetDistribution run against an open transaction.
func (s *Store) GetDistributionTx(ctx context.Context, tx *sql.Tx, repositoryID, distribution string) (Distribution, error) {
	return getDistribution(ctx, tx, repositoryID, distribution)
}

func getDistribution(ctx context.Context, q dbtx, repositoryID, distribution string) (Distribution, error) {
	var d Distribution
	var origin, label, version, description sql.NullString
	var contents, clearsigned, detached []byte
	err := q.QueryRowContext(ctx, `
		SELECT id, repository_id, distribution, suite, codename, origin, label, version, description, contents, clearsigned, detached, updated_at
		FROM distribution WHERE repository_id = $1 AND distribution = $2
	`, repositoryID, distribution).Scan(&d.ID, &d.RepositoryID, &d.Distribution, &d.Suite, &d.Codename,
		&origin, &label, &version, &description, &contents, &clearsigned, &detached, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return Distribution{}, apierr.Newf(apierr.DistNotFound, "distribution %q not found", distribution)
	}
	if err != nil {
		return Distribution{}, apierr.Wrap(apierr.DatabaseError, "loading distribution", err)
	}
	d.Origin, d.Label, d.Version, d.Description = origin.String, label.String, version.String, description.String
	d.Contents, d.Clearsigned, d.Detached = contents, clearsigned, detached
	return d, nil
}

// ListDistributions returns every distribution under repositoryID.
func (s *Store) ListDistributions(ctx context.Context, repositoryID string) ([]Distribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_id, distribution, suite, codename, updated_at
		FROM distribution WHERE repository_id = $1 ORDER BY distribution
	`, repositoryID)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "listing distributions", err)
	}
	defer rows.Close()

	var out []Distribution
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.ID, &d.RepositoryID, &d.Distribution, &d.Suite, &d.Codename, &d.UpdatedAt); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning distribution", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// EditDistribution updates a distribution's descriptive metadata fields.
func (s *Store) EditDistribution(ctx context.Context, repositoryID, distribution string, origin, label, version, description *string) (Distribution, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE distribution SET
			origin = COALESCE($3, origin),
			label = COALESCE($4, label),
			version = COALESCE($5, version),
			description = COALESCE($6, description),
			updated_at = NOW()
		WHERE repository_id = $1 AND distribution = $2
	`, repositoryID, distribution, origin, label, version, description)
	if err != nil {
		return Distribution{}, apierr.Wrap(apierr.DatabaseError, "editing distribution", err)
	}
	return s.GetDistribution(ctx, repositoryID, distribution)
}

// UpdateRelease advances a distribution's rendered contents and, when SC
// supplies them, its signatures. It always runs against an open transaction:
// this mutation is part of SC's step-5 persist and must commit or roll back
// atomically with the component/index/package changes in the same tx.
func (s *Store) UpdateRelease(ctx context.Context, tx *sql.Tx, releaseID string, contents []byte, clearsigned, detached []byte) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE distribution SET contents = $2, clearsigned = $3, detached = $4, updated_at = NOW()
		WHERE id = $1
	`, releaseID, contents, nullableBytes(clearsigned), nullableBytes(detached))
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "updating release", err)
	}
	return nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
