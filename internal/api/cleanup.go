package api

import (
	"context"
	"database/sql"

	"github.com/packhost/repod/internal/catalog"
)

// runCleanup expires by-hash objects whose retention window has passed,
// deleting their catalog rows and then their content-store objects. The row
// deletes are committed in the same serializable transaction that read
// them; the CS deletes run after that commit, outside the transaction.
func (s *Server) runCleanup(ctx context.Context) error {
	var expired []catalog.ByHashObject
	err := s.Catalog.WithSerializableTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.Catalog.ExpiredByHashObjects(ctx, tx)
		if err != nil {
			return err
		}
		expired = rows
		for _, o := range rows {
			if err := s.Catalog.DeleteByHashObject(ctx, tx, o.Bucket, o.Key, o.SHA256); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(expired))
	for _, o := range expired {
		keys = append(keys, o.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.Content.Delete(ctx, keys)
}
