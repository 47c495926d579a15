// Package index is IDX: the transactional orchestrator that composes a
// candidate Packages index and Release file for one PackageChange, without
// writing anything — the write happens later, in signcommit, once the
// client has countersigned the candidate Release text.
package index

import (
	"context"
	"time"

	"github.com/packhost/repod/internal/apierr"
	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/content"
	"github.com/packhost/repod/internal/render"
)

// Action is either Add or Remove, spec §4.4's PackageChange.action.
type Action struct {
	// Add, if true, identifies the package by SHA256. Otherwise this is a
	// Remove, identified by (Name, Version, Architecture).
	Add          bool
	SHA256       string
	Name         string
	Version      string
	Architecture string
}

// PackageChange is the input to GenerateIndex.
type PackageChange struct {
	TenantID     string
	Repository   string
	Distribution string
	Component    string
	Action       Action
}

// Result is IDX's output: the candidate Release text plus the nonce the
// caller must echo back to Sign-Commit.
type Result struct {
	Release   []byte
	ReleaseTS time.Time

	// Internal fields threaded through to signcommit so it does not have
	// to re-derive them; not part of the public HTTP response.
	RepositoryID    string
	DistributionID  string
	ComponentID     string
	ComponentIsNew  bool
	Architecture    string
	ChangedPackage  catalog.Package
	NewPackagesSet  []render.PackageRecord
	PackagesResult  render.PackagesResult
	ReleaseMeta     render.ReleaseMeta
	AllIndexesAfter []render.IndexDescriptor
}

// Engine runs GenerateIndex against a catalog.Store.
type Engine struct {
	Catalog *catalog.Store
}

// New builds an Engine.
func New(store *catalog.Store) *Engine { return &Engine{Catalog: store} }

// GenerateIndex implements spec §4.4's 10-step algorithm. now is injected
// so tests can control the sampled release_ts deterministically.
func (e *Engine) GenerateIndex(ctx context.Context, change PackageChange, now time.Time) (Result, error) {
	var result Result

	// Steps 2-4 resolve identity; step 10 says "release the transaction
	// (read-only; no writes yet)" so the whole computation runs outside a
	// transaction over a read-only snapshot of catalog state. A concurrent
	// writer racing this read is caught at Sign-Commit time by the
	// SERIALIZABLE transaction there, which is where the real conflict
	// detection lives (spec §4.5 step 1-2, §5).
	pkg, err := e.resolveChangedPackage(ctx, change)
	if err != nil {
		return Result{}, err
	}
	result.ChangedPackage = pkg

	repo, err := e.Catalog.GetRepository(ctx, change.TenantID, change.Repository)
	if err != nil {
		return Result{}, err
	}
	result.RepositoryID = repo.ID

	dist, distExists, err := e.resolveDistribution(ctx, repo.ID, change.Distribution, change.Action.Add)
	if err != nil {
		return Result{}, err
	}
	result.DistributionID = dist.ID
	result.ReleaseMeta = render.ReleaseMeta{
		Origin:      dist.Origin,
		Label:       dist.Label,
		Version:     dist.Version,
		Suite:       dist.Suite,
		Codename:    dist.Codename,
		Description: dist.Description,
	}

	var componentID string
	if distExists {
		comp, found, err := e.Catalog.GetComponent(ctx, dist.ID, change.Component)
		if err != nil {
			return Result{}, err
		}
		if found {
			componentID = comp.ID
		} else {
			result.ComponentIsNew = true
		}
	} else {
		result.ComponentIsNew = true
	}
	result.ComponentID = componentID
	result.Architecture = pkg.Architecture

	// Step 5: current package set for (release, component, architecture).
	current, err := e.Catalog.LoadComponentPackages(ctx, componentID, pkg.Architecture)
	if err != nil {
		return Result{}, err
	}

	// Step 6: compute the new set.
	newSet := applyChange(current, pkg, change)
	result.NewPackagesSet = newSet

	// Step 7: render the Packages index over the new set.
	render.SortPackageRecords(newSet)
	packagesResult := render.RenderPackages(newSet)
	result.PackagesResult = packagesResult

	// Step 8: substitute into the other indexes of this release.
	var others []render.IndexDescriptor
	if distExists {
		rows, err := e.Catalog.LoadReleaseIndexes(ctx, dist.ID)
		if err != nil {
			return Result{}, err
		}
		for _, row := range rows {
			if row.ComponentID == componentID && row.Architecture == pkg.Architecture {
				continue // replaced below
			}
			others = append(others, render.IndexDescriptor{
				Component:    row.ComponentName,
				Architecture: row.Architecture,
				Size:         row.Size,
				MD5:          row.MD5Sum,
				SHA1:         row.SHA1Sum,
				SHA256:       row.SHA256Sum,
			})
		}
	}
	if packagesResult.Size > 0 {
		others = append(others, render.IndexDescriptor{
			Component:    change.Component,
			Architecture: pkg.Architecture,
			Size:         packagesResult.Size,
			MD5:          packagesResult.MD5,
			SHA1:         packagesResult.SHA1,
			SHA256:       packagesResult.SHA256,
		})
	}
	result.AllIndexesAfter = others

	// Step 9: render the Release with a freshly sampled timestamp.
	releaseResult := render.RenderRelease(result.ReleaseMeta, now, others)
	result.Release = releaseResult.Contents
	result.ReleaseTS = now

	return result, nil
}

func (e *Engine) resolveChangedPackage(ctx context.Context, change PackageChange) (catalog.Package, error) {
	if change.Action.Add {
		return e.Catalog.GetPackageBySHA256(ctx, change.TenantID, change.Action.SHA256)
	}
	return e.Catalog.GetPackageByIdentity(ctx, change.TenantID, change.Action.Name, change.Action.Version, change.Action.Architecture)
}

// resolveDistribution implements step 4: absence is not an error for Add
// (a default distribution is synthesized and created on commit) but is an
// error for Remove.
func (e *Engine) resolveDistribution(ctx context.Context, repositoryID, distribution string, isAdd bool) (catalog.Distribution, bool, error) {
	dist, err := e.Catalog.GetDistribution(ctx, repositoryID, distribution)
	if err == nil {
		return dist, true, nil
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.DistNotFound {
		return catalog.Distribution{}, false, err
	}
	if !isAdd {
		return catalog.Distribution{}, false, err
	}
	return catalog.Distribution{
		RepositoryID: repositoryID,
		Distribution: distribution,
		Suite:        distribution,
		Codename:     distribution,
	}, false, nil
}

// applyChange implements step 6: Add appends (or is a no-op if the identity
// triple is already present with an equal sha256sum); Remove filters by
// identity tuple. This is the spec-mandated fix for the original
// implementation's documented double-add defect.
func applyChange(current []catalog.ComponentPackageRecord, pkg catalog.Package, change PackageChange) []render.PackageRecord {
	out := make([]render.PackageRecord, 0, len(current)+1)
	matched := false

	for _, c := range current {
		if change.Action.Add && c.Name == pkg.Name && c.Version == pkg.Version && c.Architecture == pkg.Architecture {
			matched = true
			if c.SHA256Sum != pkg.SHA256Sum {
				// Identity collision with a different payload: spec
				// invariant 4 should already have rejected this at upload
				// time (PACKAGE_CONFLICT), so this path is unreachable in
				// a consistent catalog; keep the existing row rather than
				// silently duplicating the identity tuple.
				out = append(out, toPackageRecord(c))
				continue
			}
			// Idempotent no-op: keep exactly one copy.
			out = append(out, toPackageRecord(c))
			continue
		}
		if !change.Action.Add && c.Name == change.Action.Name && c.Version == change.Action.Version && c.Architecture == change.Action.Architecture {
			continue // removed
		}
		out = append(out, toPackageRecord(c))
	}

	if change.Action.Add && !matched {
		out = append(out, render.PackageRecord{
			Paragraph:    pkg.Paragraph,
			Name:         pkg.Name,
			Version:      pkg.Version,
			Architecture: pkg.Architecture,
			Filename:     content.RelativePoolKey(change.Component, pkg.Name, pkg.Version, pkg.Architecture),
			Size:         pkg.Size,
			MD5:          pkg.MD5Sum,
			SHA1:         pkg.SHA1Sum,
			SHA256:       pkg.SHA256Sum,
		})
	}

	return out
}

func toPackageRecord(c catalog.ComponentPackageRecord) render.PackageRecord {
	return render.PackageRecord{
		Paragraph:    c.Paragraph,
		Name:         c.Name,
		Version:      c.Version,
		Architecture: c.Architecture,
		Filename:     c.Filename,
		Size:         c.Size,
		MD5:          c.MD5Sum,
		SHA1:         c.SHA1Sum,
		SHA256:       c.SHA256Sum,
	}
}

