package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/packhost/repod/internal/apierr"
	"github.com/packhost/repod/internal/debctl"
)

// LinkPackage idempotently upserts the (component, package) junction row
// with its pool filename.
func (s *Store) LinkPackage(ctx context.Context, tx *sql.Tx, componentID, packageID, filename string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO component_package (component_id, package_id, filename)
		VALUES ($1, $2, $3)
		ON CONFLICT (component_id, package_id) DO UPDATE SET filename = EXCLUDED.filename
	`, componentID, packageID, filename)
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "linking package", err)
	}
	return nil
}

// UnlinkPackage removes the (component, package) junction row and reports
// whether the package is now orphaned (no remaining links). An orphaned
// package's row is deleted here, in the same transaction; deleting its CS
// object is left to the caller, per spec §9 "Orphan cleanup".
func (s *Store) UnlinkPackage(ctx context.Context, tx *sql.Tx, componentID, packageID string) (orphaned bool, err error) {
	_, err = tx.ExecContext(ctx, `
		DELETE FROM component_package WHERE component_id = $1 AND package_id = $2
	`, componentID, packageID)
	if err != nil {
		return false, apierr.Wrap(apierr.DatabaseError, "unlinking package", err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM component_package WHERE package_id = $1
	`, packageID).Scan(&remaining)
	if err != nil {
		return false, apierr.Wrap(apierr.DatabaseError, "counting remaining links", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM package WHERE id = $1`, packageID); err != nil {
			return false, apierr.Wrap(apierr.DatabaseError, "deleting orphan package", err)
		}
		return true, nil
	}
	return false, nil
}

// ComponentPackageRecord is one row of the package set for a (release,
// component, architecture) tuple, the input IDX loads in step 5.
type ComponentPackageRecord struct {
	PackageID    string
	Name         string
	Version      string
	Architecture string
	Filename     string
	Paragraph    debctl.Paragraph
	Size         int64
	MD5Sum       string
	SHA1Sum      string
	SHA256Sum    string
}

// LoadComponentPackages returns every package currently linked under
// componentID restricted to architecture, the "current package set" of IDX
// step 5. If componentID is empty (the component does not yet exist) it
// returns an empty set without error.
func (s *Store) LoadComponentPackages(ctx context.Context, componentID, architecture string) ([]ComponentPackageRecord, error) {
	if componentID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pkg.id, pkg.name, pkg.version, pkg.architecture, cp.filename, pkg.paragraph,
			pkg.size, pkg.md5sum, pkg.sha1sum, pkg.sha256sum
		FROM component_package cp
		JOIN package pkg ON pkg.id = cp.package_id
		WHERE cp.component_id = $1 AND pkg.architecture = $2
	`, componentID, architecture)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "loading component packages", err)
	}
	defer rows.Close()

	var out []ComponentPackageRecord
	for rows.Next() {
		var r ComponentPackageRecord
		var paragraphJSON []byte
		if err := rows.Scan(&r.PackageID, &r.Name, &r.Version, &r.Architecture, &r.Filename, &paragraphJSON,
			&r.Size, &r.MD5Sum, &r.SHA1Sum, &r.SHA256Sum); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning component package", err)
		}
		if err := json.Unmarshal(paragraphJSON, &r.Paragraph); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "decoding control paragraph", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertIndex writes the rendered PackagesIndex row for (componentID,
// architecture). Passing an empty contents deletes the row instead, per
// spec §4.4 step 8 ("drop it entirely if its new size is 0").
func (s *Store) UpsertIndex(ctx context.Context, tx *sql.Tx, componentID, architecture string, size int64, md5sum, sha1sum, sha256sum string, contents []byte) error {
	if len(contents) == 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM packages_index WHERE component_id = $1 AND architecture = $2
		`, componentID, architecture)
		if err != nil {
			return apierr.Wrap(apierr.DatabaseError, "dropping empty index", err)
		}
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO packages_index (component_id, architecture, size, md5sum, sha1sum, sha256sum, contents, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (component_id, architecture) DO UPDATE SET
			size = EXCLUDED.size, md5sum = EXCLUDED.md5sum, sha1sum = EXCLUDED.sha1sum,
			sha256sum = EXCLUDED.sha256sum, contents = EXCLUDED.contents, updated_at = NOW()
	`, componentID, architecture, size, md5sum, sha1sum, sha256sum, contents)
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "upserting index", err)
	}
	return nil
}

// ReleaseIndexRow is one PackagesIndex row scoped to a release, joined with
// its owning component's name, the input to IDX step 8/9.
type ReleaseIndexRow struct {
	ComponentID   string
	ComponentName string
	Architecture  string
	Size          int64
	MD5Sum        string
	SHA1Sum       string
	SHA256Sum     string
	Contents      []byte
}

// LoadReleaseIndexes returns every PackagesIndex row for every component
// under releaseID.
func (s *Store) LoadReleaseIndexes(ctx context.Context, releaseID string) ([]ReleaseIndexRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pi.component_id, comp.name, pi.architecture, pi.size, pi.md5sum, pi.sha1sum, pi.sha256sum, pi.contents
		FROM packages_index pi
		JOIN component comp ON comp.id = pi.component_id
		WHERE comp.release_id = $1
	`, releaseID)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "loading release indexes", err)
	}
	defer rows.Close()

	var out []ReleaseIndexRow
	for rows.Next() {
		var r ReleaseIndexRow
		if err := rows.Scan(&r.ComponentID, &r.ComponentName, &r.Architecture, &r.Size, &r.MD5Sum, &r.SHA1Sum, &r.SHA256Sum, &r.Contents); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning release index", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
