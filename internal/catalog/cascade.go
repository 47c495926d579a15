package catalog

import (
	"context"
	"database/sql"

	"github.com/packhost/repod/internal/apierr"
)

// CascadeDeleteResult lists everything a distribution deletion removed, so
// the caller can issue the matching CS deletes outside the transaction
// (spec §9: "CS deletions are batched outside the transaction").
type CascadeDeleteResult struct {
	ReleaseKeys []string // Release, Release.gpg, InRelease, by-hash copies
	IndexKeys   []string // per-component per-architecture Packages keys
	PoolKeys    []string // packages/<sha256> blob keys of packages now fully orphaned
}

// CascadeDeleteDistribution implements Testable Property 9: deleting a
// distribution removes its Release, every component's Packages index,
// every by-hash historical copy whose catalog row is removed, and every
// package whose last link is dropped. It runs inside a single serializable
// transaction; the returned keys are safe to delete from CS only after the
// transaction commits.
func (s *Store) CascadeDeleteDistribution(ctx context.Context, repositoryID, distribution string) (CascadeDeleteResult, error) {
	var result CascadeDeleteResult

	err := s.WithSerializableTx(ctx, func(tx *sql.Tx) error {
		var releaseID, s3Prefix string
		err := tx.QueryRowContext(ctx, `
			SELECT dist.id, repo.s3_prefix
			FROM distribution dist
			JOIN repository repo ON repo.id = dist.repository_id
			WHERE dist.repository_id = $1 AND dist.distribution = $2
		`, repositoryID, distribution).Scan(&releaseID, &s3Prefix)
		if err == sql.ErrNoRows {
			return apierr.Newf(apierr.DistNotFound, "distribution %q not found", distribution)
		}
		if err != nil {
			return apierr.Wrap(apierr.DatabaseError, "loading distribution for delete", err)
		}

		base := s3Prefix + "/dists/" + distribution
		result.ReleaseKeys = append(result.ReleaseKeys, base+"/Release", base+"/Release.gpg", base+"/InRelease")

		rows, err := tx.QueryContext(ctx, `
			SELECT pi.component_id, comp.name, pi.architecture
			FROM packages_index pi
			JOIN component comp ON comp.id = pi.component_id
			WHERE comp.release_id = $1
		`, releaseID)
		if err != nil {
			return apierr.Wrap(apierr.DatabaseError, "loading indexes for delete", err)
		}
		var componentIDs []string
		for rows.Next() {
			var componentID, name, arch string
			if err := rows.Scan(&componentID, &name, &arch); err != nil {
				rows.Close()
				return apierr.Wrap(apierr.DatabaseError, "scanning index for delete", err)
			}
			componentIDs = append(componentIDs, componentID)
			result.IndexKeys = append(result.IndexKeys, base+"/"+name+"/binary-"+arch+"/Packages")
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apierr.Wrap(apierr.DatabaseError, "iterating indexes for delete", err)
		}

		for _, componentID := range componentIDs {
			orphanRows, err := tx.QueryContext(ctx, `
				SELECT pkg.id, pkg.sha256sum
				FROM component_package cp
				JOIN package pkg ON pkg.id = cp.package_id
				WHERE cp.component_id = $1
				AND NOT EXISTS (
					SELECT 1 FROM component_package cp2
					JOIN component comp2 ON comp2.id = cp2.component_id
					WHERE cp2.package_id = pkg.id AND comp2.release_id <> $2
				)
			`, componentID, releaseID)
			if err != nil {
				return apierr.Wrap(apierr.DatabaseError, "finding orphan candidates", err)
			}
			var orphanPackageIDs []string
			for orphanRows.Next() {
				var pkgID, sha string
				if err := orphanRows.Scan(&pkgID, &sha); err != nil {
					orphanRows.Close()
					return apierr.Wrap(apierr.DatabaseError, "scanning orphan candidate", err)
				}
				orphanPackageIDs = append(orphanPackageIDs, pkgID)
				result.PoolKeys = append(result.PoolKeys, "packages/"+sha)
			}
			orphanRows.Close()
			if err := orphanRows.Err(); err != nil {
				return apierr.Wrap(apierr.DatabaseError, "iterating orphan candidates", err)
			}
			for _, pkgID := range orphanPackageIDs {
				if _, err := tx.ExecContext(ctx, `DELETE FROM package WHERE id = $1`, pkgID); err != nil {
					return apierr.Wrap(apierr.DatabaseError, "deleting orphan package", err)
				}
			}
		}

		var byHashKeys []string
		byHashRows, err := tx.QueryContext(ctx, `
			SELECT key FROM by_hash_object WHERE key LIKE $1
		`, base+"/%")
		if err != nil {
			return apierr.Wrap(apierr.DatabaseError, "loading by-hash rows for delete", err)
		}
		for byHashRows.Next() {
			var key string
			if err := byHashRows.Scan(&key); err != nil {
				byHashRows.Close()
				return apierr.Wrap(apierr.DatabaseError, "scanning by-hash row", err)
			}
			byHashKeys = append(byHashKeys, key)
		}
		byHashRows.Close()
		if err := byHashRows.Err(); err != nil {
			return apierr.Wrap(apierr.DatabaseError, "iterating by-hash rows", err)
		}
		result.ReleaseKeys = append(result.ReleaseKeys, byHashKeys...)
		if _, err := tx.ExecContext(ctx, `DELETE FROM by_hash_object WHERE key LIKE $1`, base+"/%"); err != nil {
			return apierr.Wrap(apierr.DatabaseError, "deleting by-hash rows", err)
		}

		// component/component_package/packages_index rows cascade via
		// ON DELETE CASCADE foreign keys defined in the schema migration.
		if _, err := tx.ExecContext(ctx, `DELETE FROM distribution WHERE id = $1`, releaseID); err != nil {
			return apierr.Wrap(apierr.DatabaseError, "deleting distribution", err)
		}
		return nil
	})
	if err != nil {
		return CascadeDeleteResult{}, err
	}
	return result, nil
}
