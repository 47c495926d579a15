package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/packhost/repod/internal/apierr"
)

// HashToken computes the peppered token hash spec §3 requires:
// SHA256(secret ‖ token_plaintext). The original implementation this system
// is modeled on hashed the bare token with no secret; this system requires
// the pepper so that a leaked database dump alone cannot be used to forge
// bearer tokens.
func HashToken(secret, token string) string {
	sum := sha256.Sum256([]byte(secret + token))
	return hex.EncodeToString(sum[:])
}

// AuthenticateToken resolves a bearer token to its owning tenant. It returns
// apierr.Unauthorized on miss, never distinguishing "token not found" from
// "token revoked" in the response.
func (s *Store) AuthenticateToken(ctx context.Context, secret, token string) (Tenant, error) {
	hashed := HashToken(secret, token)
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant.id, tenant.display_name, tenant.subdomain
		FROM api_token
		JOIN tenant ON tenant.id = api_token.tenant_id
		WHERE api_token.hashed_token = $1
	`, hashed).Scan(&t.ID, &t.DisplayName, &t.Subdomain)
	if err == sql.ErrNoRows {
		return Tenant{}, apierr.New(apierr.Unauthorized, "invalid or missing bearer token")
	}
	if err != nil {
		return Tenant{}, apierr.Wrap(apierr.DatabaseError, "looking up token", err)
	}
	return t, nil
}

// EnsureBootstrapTenant creates (or reuses) a default tenant and sets its
// token to the hash of bootstrapToken, mirroring the original's
// ATTUNE_API_TOKEN startup behaviour: a single-tenant deployment
// re-initializes its one token on every process start.
func (s *Store) EnsureBootstrapTenant(ctx context.Context, secret, bootstrapToken string) (Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tenant (id, display_name, subdomain)
		VALUES ($1, 'default', 'default')
		ON CONFLICT (subdomain) DO UPDATE SET subdomain = EXCLUDED.subdomain
		RETURNING id, display_name, subdomain
	`, uuid.NewString()).Scan(&t.ID, &t.DisplayName, &t.Subdomain)
	if err != nil {
		return Tenant{}, apierr.Wrap(apierr.DatabaseError, "creating bootstrap tenant", err)
	}

	hashed := HashToken(secret, bootstrapToken)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_token (tenant_id, hashed_token)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET hashed_token = EXCLUDED.hashed_token
	`, t.ID, hashed)
	if err != nil {
		return Tenant{}, apierr.Wrap(apierr.DatabaseError, "setting bootstrap token", err)
	}
	return t, nil
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
