package catalog

import (
	"context"
	"database/sql"

	"github.com/packhost/repod/internal/apierr"
)

// EnsureComponent returns the component named name under releaseID,
// creating it if absent. Component names are validated against
// ^[A-Za-z0-9_-]+$ per spec §3.
func (s *Store) EnsureComponent(ctx context.Context, tx *sql.Tx, releaseID, name string) (Component, error) {
	if !ValidComponentName(name) {
		return Component{}, apierr.Newf(apierr.InvalidComponent, "invalid component name %q", name)
	}

	var c Component
	err := tx.QueryRowContext(ctx, `
		SELECT id, release_id, name FROM component WHERE release_id = $1 AND name = $2
	`, releaseID, name).Scan(&c.ID, &c.ReleaseID, &c.Name)
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return Component{}, apierr.Wrap(apierr.DatabaseError, "loading component", err)
	}

	c = Component{ID: newID("comp"), ReleaseID: releaseID, Name: name}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO component (id, release_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (release_id, name) DO NOTHING
	`, c.ID, c.ReleaseID, c.Name)
	if err != nil {
		return Component{}, apierr.Wrap(apierr.DatabaseError, "inserting component", err)
	}
	return c, nil
}

// GetComponent resolves a component by (release, name) without creating it,
// used by read-only paths like GenerateIndex's candidate computation.
func (s *Store) GetComponent(ctx context.Context, releaseID, name string) (Component, bool, error) {
	var c Component
	err := s.db.QueryRowContext(ctx, `
		SELECT id, release_id, name FROM component WHERE release_id = $1 AND name = $2
	`, releaseID, name).Scan(&c.ID, &c.ReleaseID, &c.Name)
	if err == sql.ErrNoRows {
		return Component{}, false, nil
	}
	if err != nil {
		return Component{}, false, apierr.Wrap(apierr.DatabaseError, "loading component", err)
	}
	return c, true, nil
}

// ListComponents returns every component under releaseID.
func (s *Store) ListComponents(ctx context.Context, releaseID string) ([]Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, release_id, name FROM component WHERE release_id = $1 ORDER BY name
	`, releaseID)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "listing components", err)
	}
	defer rows.Close()

	var out []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.ReleaseID, &c.Name); err != nil {
			return nil, apierr.Wrap(apierr.DatabaseError, "scanning component", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
