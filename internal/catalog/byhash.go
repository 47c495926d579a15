package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/packhost/repod/internal/apierr"
)

// RecordByHash tracks a newly-published by-hash copy so it can later be
// expired. supersedes, if non-empty, is the SHA-256 of the previous copy at
// the same by-hash path; that row is marked superseded with an expiry of
// now+retention, per spec §4.5 step 6 / §9 "By-hash retention".
func (s *Store) RecordByHash(ctx context.Context, tx *sql.Tx, bucket, key, sha256sum string, supersedesSHA256 string, retention time.Duration) error {
	if supersedesSHA256 != "" {
		expiresAt := time.Now().UTC().Add(retention)
		_, err := tx.ExecContext(ctx, `
			UPDATE by_hash_object SET superseded_at = NOW(), expires_at = $3
			WHERE bucket = $1 AND key = $2 AND sha256 = $4
		`, bucket, key, expiresAt, supersedesSHA256)
		if err != nil {
			return apierr.Wrap(apierr.DatabaseError, "marking by-hash object superseded", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO by_hash_object (bucket, key, sha256, superseded_at, expires_at)
		VALUES ($1, $2, $3, NULL, NULL)
		ON CONFLICT (bucket, key, sha256) DO NOTHING
	`, bucket, key, sha256sum)
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "recording by-hash object", err)
	}
	return nil
}

// ExpiredByHashObjects returns every by-hash row whose expires_at has
// passed, the set /cleanup removes from CAT and then deletes from CS.
func (s *Store) ExpiredByHashObjects(ctx context.Context, tx *sql.Tx) ([]ByHashObject, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT bucket, key, sha256, superseded_at, expires_at
		FROM by_hash_object WHERE expires_at IS NOT NULL AND expires_at <= NOW()
	`)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "listing expired by-hash objects", err)
	}
	defer rows.Close()

	var out []ByHashObject
	for rows.Next() {
		var o ByHashObject
		if err := rows.Scan(&o.Bucket, &o.Key, &o.SHA256, &o.SupersededAt, &o.ExpiresAt); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning by-hash object", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteByHashObject removes the catalog row; /cleanup deletes the matching
// CS object after the transaction commits.
func (s *Store) DeleteByHashObject(ctx context.Context, tx *sql.Tx, bucket, key, sha256sum string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM by_hash_object WHERE bucket = $1 AND key = $2 AND sha256 = $3
	`, bucket, key, sha256sum)
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "deleting by-hash object row", err)
	}
	return nil
}
