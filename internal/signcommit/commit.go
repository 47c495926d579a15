// Package signcommit is SC: the half of the pipeline that takes a client's
// countersigned Release text, verifies it still matches what the server
// would render right now, and commits the change atomically across the
// catalog and the content store.
package signcommit

import (
	"bytes"
	"context"
	"database/sql"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/packhost/repod/internal/apierr"
	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/content"
	"github.com/packhost/repod/internal/index"
)

// DefaultByHashRetention is used when the caller does not override it via
// ATTUNE_BYHASH_RETENTION.
const DefaultByHashRetention = 24 * time.Hour

// Request bundles SignIndex's inputs; ReleaseTS must be the nonce a prior
// GenerateIndex call returned.
type Request struct {
	Change          index.PackageChange
	ReleaseTS       time.Time
	Clearsigned     []byte
	Detachsigned    []byte
	PublicKeyCert   []byte
	ByHashRetention time.Duration
}

// Committer runs SignIndex against a catalog.Store, content.Store and
// index.Engine.
type Committer struct {
	Catalog *catalog.Store
	Content *content.Store
	Engine  *index.Engine
}

// New builds a Committer.
func New(cat *catalog.Store, cs *content.Store, engine *index.Engine) *Committer {
	return &Committer{Catalog: cat, Content: cs, Engine: engine}
}

// SignIndex implements spec §4.5's seven-step commit protocol.
func (c *Committer) SignIndex(ctx context.Context, req Request) error {
	retention := req.ByHashRetention
	if retention <= 0 {
		retention = DefaultByHashRetention
	}

	// Step 2: repeat the GenerateIndex computation using the echoed
	// release_ts so Date reproduces exactly.
	candidate, err := c.Engine.GenerateIndex(ctx, req.Change, req.ReleaseTS)
	if err != nil {
		return err
	}

	// Steps 3-4: the clearsigned payload must byte-match the recomputed
	// Release, and the detached signature must verify against it.
	if err := verifySignatures(candidate.Release, req.Clearsigned, req.Detachsigned, req.PublicKeyCert); err != nil {
		return err
	}

	var publish publishPlan

	// Steps 1 and 5: persist inside a single serializable transaction.
	err = c.Catalog.WithSerializableTx(ctx, func(tx *sql.Tx) error {
		repo, err := c.Catalog.GetRepository(ctx, req.Change.TenantID, req.Change.Repository)
		if err != nil {
			return err
		}

		dist, err := c.ensureDistribution(ctx, tx, repo.ID, req.Change.Distribution)
		if err != nil {
			return err
		}

		comp, err := c.Catalog.EnsureComponent(ctx, tx, dist.ID, req.Change.Component)
		if err != nil {
			return err
		}

		pkg := candidate.ChangedPackage
		if req.Change.Action.Add {
			relFilename := content.RelativePoolKey(req.Change.Component, pkg.Name, pkg.Version, pkg.Architecture)
			if err := c.Catalog.LinkPackage(ctx, tx, comp.ID, pkg.ID, relFilename); err != nil {
				return err
			}
			publish.poolKey = repo.S3Prefix + "/" + relFilename
			publish.poolPackageSHA = pkg.SHA256Sum
		} else {
			orphaned, err := c.Catalog.UnlinkPackage(ctx, tx, comp.ID, pkg.ID)
			if err != nil {
				return err
			}
			publish.orphanedPackage = orphaned
			publish.orphanedSHA = pkg.SHA256Sum
		}

		if err := c.Catalog.UpsertIndex(ctx, tx, comp.ID, candidate.Architecture,
			candidate.PackagesResult.Size, candidate.PackagesResult.MD5, candidate.PackagesResult.SHA1, candidate.PackagesResult.SHA256,
			candidate.PackagesResult.Contents); err != nil {
			return err
		}

		if err := c.Catalog.UpdateRelease(ctx, tx, dist.ID, candidate.Release, req.Clearsigned, req.Detachsigned); err != nil {
			return err
		}

		publish.bucket = repo.S3Bucket
		publish.s3Prefix = repo.S3Prefix
		publish.distribution = req.Change.Distribution
		publish.component = req.Change.Component
		publish.architecture = candidate.Architecture
		publish.indexContents = candidate.PackagesResult.Contents
		publish.indexMD5 = candidate.PackagesResult.MD5
		publish.indexSHA1 = candidate.PackagesResult.SHA1
		publish.indexSHA256 = candidate.PackagesResult.SHA256
		publish.release = candidate.Release
		publish.clearsigned = req.Clearsigned
		publish.detached = req.Detachsigned

		if err := c.recordByHash(ctx, tx, publish, retention); err != nil {
			return err
		}

		// Step 6: CS writes happen before the commit (step 7). They are
		// idempotent content-addressed puts, so replaying them after a crash
		// is safe; the Release put is always last.
		return c.publish(ctx, publish)
	})
	if err != nil {
		return err
	}

	// An orphaned package's blob is deleted only after the commit, outside
	// the transaction.
	if publish.orphanedPackage {
		return c.Content.Delete(ctx, []string{content.PackageKey(publish.orphanedSHA)})
	}
	return nil
}

type publishPlan struct {
	bucket       string
	s3Prefix     string
	distribution string
	component    string
	architecture string

	poolKey         string
	poolPackageSHA  string
	orphanedPackage bool
	orphanedSHA     string

	indexContents []byte
	indexMD5      string
	indexSHA1     string
	indexSHA256   string

	release     []byte
	clearsigned []byte
	detached    []byte
}

func (c *Committer) ensureDistribution(ctx context.Context, tx *sql.Tx, repositoryID, distribution string) (catalog.Distribution, error) {
	dist, err := c.Catalog.GetDistributionTx(ctx, tx, repositoryID, distribution)
	if err == nil {
		return dist, nil
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.DistNotFound {
		return catalog.Distribution{}, err
	}
	return c.Catalog.CreateDistributionTx(ctx, tx, repositoryID, distribution, distribution, distribution)
}

// recordByHash tracks the by-hash keys this commit publishes. It does not
// mark earlier by-hash copies as superseded, so no expiry is set on them.
func (c *Committer) recordByHash(ctx context.Context, tx *sql.Tx, p publishPlan, retention time.Duration) error {
	entries := []struct {
		key    string
		sha256 string
	}{
		{content.ByHashKey(p.s3Prefix, p.distribution, p.component, p.architecture, "SHA256", p.indexSHA256), p.indexSHA256},
		{content.ByHashKey(p.s3Prefix, p.distribution, p.component, p.architecture, "SHA1", p.indexSHA1), p.indexSHA1},
		{content.ByHashKey(p.s3Prefix, p.distribution, p.component, p.architecture, "MD5Sum", p.indexMD5), p.indexMD5},
	}
	for _, e := range entries {
		if err := c.Catalog.RecordByHash(ctx, tx, p.bucket, e.key, e.sha256, "", retention); err != nil {
			return err
		}
	}
	return nil
}

// publish writes the committed bytes to CS. Every write is an idempotent
// content-addressed (or overwrite-safe) put; the Release put is issued last,
// matching spec §4.5 step 7's ordering guarantee.
func (c *Committer) publish(ctx context.Context, p publishPlan) error {
	if p.poolKey != "" {
		if err := c.Content.Copy(ctx, content.PackageKey(p.poolPackageSHA), p.poolKey); err != nil {
			return err
		}
	}

	indexKey := content.IndexKey(p.s3Prefix, p.distribution, p.component, p.architecture)
	if err := c.Content.Put(ctx, indexKey, p.indexContents); err != nil {
		return err
	}
	for algo, digest := range map[string]string{"MD5Sum": p.indexMD5, "SHA1": p.indexSHA1, "SHA256": p.indexSHA256} {
		byHashKey := content.ByHashKey(p.s3Prefix, p.distribution, p.component, p.architecture, algo, digest)
		if err := c.Content.Put(ctx, byHashKey, p.indexContents); err != nil {
			return err
		}
	}

	if len(p.clearsigned) > 0 {
		if err := c.Content.Put(ctx, content.InReleaseKey(p.s3Prefix, p.distribution), p.clearsigned); err != nil {
			return err
		}
	}
	if len(p.detached) > 0 {
		if err := c.Content.Put(ctx, content.ReleaseGPGKey(p.s3Prefix, p.distribution), p.detached); err != nil {
			return err
		}
	}
	return c.Content.Put(ctx, content.ReleaseKey(p.s3Prefix, p.distribution), p.release)
}

// verifySignatures implements spec §4.5 steps 3-4: the clearsigned payload
// must byte-match the freshly recomputed Release, and the detached signature
// must verify against that same recomputed text. A client signing against a
// stale Release (one the server has since re-rendered) fails the byte
// comparison here, independent of whether its signature is otherwise valid.
func verifySignatures(candidateRelease, clearsigned, detachsigned, publicKeyCert []byte) error {
	block, _ := clearsign.Decode(clearsigned)
	if block == nil {
		return apierr.New(apierr.SigVerifyFailed, "clearsigned payload could not be decoded")
	}
	if !bytes.Equal(normalizeClearsignBody(block.Bytes), normalizeClearsignBody(candidateRelease)) {
		return apierr.New(apierr.SigVerifyFailed, "clearsigned payload does not match the current release")
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(publicKeyCert))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(publicKeyCert))
		if err != nil {
			return apierr.Wrap(apierr.SigVerifyFailed, "invalid public key certificate", err)
		}
	}
	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(candidateRelease), detachedSignatureReader(detachsigned), nil); err != nil {
		return apierr.Wrap(apierr.SigVerifyFailed, "detached signature verification failed", err)
	}
	return nil
}

// detachedSignatureReader accepts either an armored or a raw binary
// detached signature, matching how clients may submit Release.gpg.
func detachedSignatureReader(sig []byte) *bytes.Reader {
	block, err := armor.Decode(bytes.NewReader(sig))
	if err != nil {
		return bytes.NewReader(sig)
	}
	decoded := new(bytes.Buffer)
	decoded.ReadFrom(block.Body)
	return bytes.NewReader(decoded.Bytes())
}

// normalizeClearsignBody trims all trailing newlines, which clearsign.Decode
// may add or drop relative to the rendered bytes, without touching internal
// whitespace that would change the signed content.
func normalizeClearsignBody(b []byte) []byte {
	return bytes.TrimRight(b, "\n")
}

