// Package consistency is CC: it reconciles the catalog's view of a
// distribution against what is actually sitting in the content store, and
// can rewrite the content store to match when they disagree.
package consistency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/content"
)

// Kind names the class of object an entry in a consistency report refers to.
type Kind string

const (
	KindRelease       Kind = "release"
	KindReleaseGPG    Kind = "release_gpg"
	KindInRelease     Kind = "in_release"
	KindPackagesIndex Kind = "packages_index"
	KindPoolPackage   Kind = "pool_package"
)

// Problem classifies how an object diverged from its expected state.
type Problem string

const (
	ProblemMissing           Problem = "missing"
	ProblemDigestMismatch    Problem = "digest_mismatch"
	ProblemUnexpectedPresent Problem = "unexpected_present"
)

// Inconsistency is one object whose actual CS state disagrees with CAT.
type Inconsistency struct {
	Key      string
	Kind     Kind
	Problem  Problem
	Expected string
	Actual   string
}

// expectedObject is CC's internal model of what should be at a key.
type expectedObject struct {
	key         string
	kind        Kind
	shouldExist bool
	sha256      string

	// sourceKey and contents let Resync rewrite the object without a second
	// catalog round trip: either copy sourceKey (pool files, copied from the
	// canonical packages/<sha256> blob) or Put contents directly (indexes
	// and release artifacts, whose canonical bytes live in CAT).
	sourceKey string
	contents  []byte
}

// Checker runs Check/Resync against a catalog.Store and content.Store.
type Checker struct {
	Catalog *catalog.Store
	Content *content.Store
}

// New builds a Checker.
func New(cat *catalog.Store, cs *content.Store) *Checker {
	return &Checker{Catalog: cat, Content: cs}
}

// Check enumerates every object CAT expects to exist (or not exist) for
// (repository, distribution) and compares it against CS, grounded on the
// original's query_repository_state/check_s3_consistency shape.
func (c *Checker) Check(ctx context.Context, tenantID, repository, distribution string) ([]Inconsistency, error) {
	expected, err := c.expectedObjects(ctx, tenantID, repository, distribution)
	if err != nil {
		return nil, err
	}

	var out []Inconsistency
	for _, e := range expected {
		attrs, err := c.Content.Head(ctx, e.key)
		switch {
		case errors.Is(err, content.ErrNotFound):
			if e.shouldExist {
				out = append(out, Inconsistency{Key: e.key, Kind: e.kind, Problem: ProblemMissing, Expected: e.sha256})
			}
		case err != nil:
			return nil, err
		case !e.shouldExist:
			out = append(out, Inconsistency{Key: e.key, Kind: e.kind, Problem: ProblemUnexpectedPresent, Actual: attrs.SHA256})
		case attrs.SHA256 != e.sha256:
			out = append(out, Inconsistency{Key: e.key, Kind: e.kind, Problem: ProblemDigestMismatch, Expected: e.sha256, Actual: attrs.SHA256})
		}
	}
	return out, nil
}

// Resync rewrites every inconsistent object from CAT's canonical state. This
// operation is not grounded in the original implementation (which left it as
// a stub); the rewrite strategy here follows directly from how each kind of
// object is produced during Sign-Commit.
func (c *Checker) Resync(ctx context.Context, tenantID, repository, distribution string) ([]Inconsistency, error) {
	expectedByKey := map[string]expectedObject{}
	expected, err := c.expectedObjects(ctx, tenantID, repository, distribution)
	if err != nil {
		return nil, err
	}
	for _, e := range expected {
		expectedByKey[e.key] = e
	}

	inconsistencies, err := c.Check(ctx, tenantID, repository, distribution)
	if err != nil {
		return nil, err
	}

	for _, inc := range inconsistencies {
		if inc.Problem == ProblemUnexpectedPresent {
			if err := c.Content.Delete(ctx, []string{inc.Key}); err != nil {
				return nil, err
			}
			continue
		}
		e, ok := expectedByKey[inc.Key]
		if !ok {
			continue
		}
		if e.sourceKey != "" {
			if err := c.Content.Copy(ctx, e.sourceKey, e.key); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.Content.Put(ctx, e.key, e.contents); err != nil {
			return nil, err
		}
	}
	return inconsistencies, nil
}

func (c *Checker) expectedObjects(ctx context.Context, tenantID, repository, distribution string) ([]expectedObject, error) {
	repo, err := c.Catalog.GetRepository(ctx, tenantID, repository)
	if err != nil {
		return nil, err
	}
	dist, err := c.Catalog.GetDistribution(ctx, repo.ID, distribution)
	if err != nil {
		return nil, err
	}

	var out []expectedObject

	out = append(out, expectedObject{
		key:         content.ReleaseKey(repo.S3Prefix, distribution),
		kind:        KindRelease,
		shouldExist: len(dist.Contents) > 0,
		sha256:      sha256Hex(dist.Contents),
		contents:    dist.Contents,
	})
	out = append(out, expectedObject{
		key:         content.ReleaseGPGKey(repo.S3Prefix, distribution),
		kind:        KindReleaseGPG,
		shouldExist: len(dist.Detached) > 0,
		sha256:      sha256Hex(dist.Detached),
		contents:    dist.Detached,
	})
	out = append(out, expectedObject{
		key:         content.InReleaseKey(repo.S3Prefix, distribution),
		kind:        KindInRelease,
		shouldExist: len(dist.Clearsigned) > 0,
		sha256:      sha256Hex(dist.Clearsigned),
		contents:    dist.Clearsigned,
	})

	rows, err := c.Catalog.LoadReleaseIndexes(ctx, dist.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out = append(out, expectedObject{
			key:         content.IndexKey(repo.S3Prefix, distribution, row.ComponentName, row.Architecture),
			kind:        KindPackagesIndex,
			shouldExist: len(row.Contents) > 0,
			sha256:      row.SHA256Sum,
			contents:    row.Contents,
		})

		packages, err := c.Catalog.LoadComponentPackages(ctx, row.ComponentID, row.Architecture)
		if err != nil {
			return nil, err
		}
		for _, pkg := range packages {
			out = append(out, expectedObject{
				key:         repo.S3Prefix + "/" + pkg.Filename,
				kind:        KindPoolPackage,
				shouldExist: true,
				sha256:      pkg.SHA256Sum,
				sourceKey:   content.PackageKey(pkg.SHA256Sum),
			})
		}
	}

	return out, nil
}

func sha256Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
