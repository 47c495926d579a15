// Package render implements REN: the pure functions that turn catalog rows
// into the exact bytes of a Packages index and a Release file.
//
// Every function here must be referentially transparent: given equal inputs
// it must produce byte-equal outputs, because Sign-Commit re-renders the
// Release file and compares it against the payload the client signed.
package render

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/packhost/repod/internal/debctl"
)

// PackageRecord is one paragraph's worth of rendering input: the control
// paragraph plus the pool filename and hashes computed at upload time.
type PackageRecord struct {
	Paragraph    debctl.Paragraph
	Name         string
	Version      string
	Architecture string
	Filename     string
	Size         int64
	MD5          string
	SHA1         string
	SHA256       string
}

// PackagesResult carries the rendered bytes alongside the digests a caller
// needs to populate a PackagesIndex row.
type PackagesResult struct {
	Contents []byte
	Size     int64
	MD5      string
	SHA1     string
	SHA256   string
}

// SortPackageRecords orders records canonically by (name, version,
// architecture, sha256), the order spec §4.3/§4.4 requires so that
// re-rendering after a retry is stable regardless of insertion order.
func SortPackageRecords(records []PackageRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		if a.Architecture != b.Architecture {
			return a.Architecture < b.Architecture
		}
		return a.SHA256 < b.SHA256
	})
}

// RenderPackages produces the exact bytes of a Packages index from an
// ordered sequence of package records. Callers must have already applied
// SortPackageRecords (or otherwise established canonical order); this
// function does not sort, since the index engine needs unsorted idempotency
// checks on the same slice before rendering.
//
// For an empty input the result is the empty string, with no trailing
// newline, per spec Testable Property 3.
func RenderPackages(records []PackageRecord) PackagesResult {
	if len(records) == 0 {
		emptyMD5 := md5.Sum(nil)
		emptySHA1 := sha1.Sum(nil)
		emptySHA256 := sha256.Sum256(nil)
		return PackagesResult{
			Contents: []byte{},
			MD5:      hex.EncodeToString(emptyMD5[:]),
			SHA1:     hex.EncodeToString(emptySHA1[:]),
			SHA256:   hex.EncodeToString(emptySHA256[:]),
		}
	}

	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, f := range r.Paragraph {
			fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
		}
		fmt.Fprintf(&b, "Filename: %s\n", r.Filename)
		fmt.Fprintf(&b, "Size: %d\n", r.Size)
		fmt.Fprintf(&b, "MD5sum: %s\n", r.MD5)
		fmt.Fprintf(&b, "SHA1: %s\n", r.SHA1)
		fmt.Fprintf(&b, "SHA256: %s\n", r.SHA256)
	}

	contents := []byte(b.String())
	md5Sum := md5.Sum(contents)
	sha1Sum := sha1.Sum(contents)
	sha256Sum := sha256.Sum256(contents)
	return PackagesResult{
		Contents: contents,
		Size:     int64(len(contents)),
		MD5:      hex.EncodeToString(md5Sum[:]),
		SHA1:     hex.EncodeToString(sha1Sum[:]),
		SHA256:   hex.EncodeToString(sha256Sum[:]),
	}
}
