package content

import (
	"fmt"
	"strings"
)

// PackageKey is the canonical content-addressed key for a package blob.
func PackageKey(sha256sum string) string {
	return "packages/" + sha256sum
}

// RelativePoolKey is the pool path relative to a repository's s3_prefix,
// per spec §3's ComponentPackage.filename format: this is also the exact
// value REN emits in a Packages index's Filename field, so the catalog row
// and the rendered bytes never disagree about where a package lives.
func RelativePoolKey(component, name, version, architecture string) string {
	firstLetter := "_"
	if name != "" {
		firstLetter = strings.ToLower(name[:1])
	}
	return fmt.Sprintf("pool/%s/%s/%s/%s_%s_%s.deb", component, firstLetter, name, name, version, architecture)
}

// PoolKey is the full content-store key of a package's published pool
// location, prefixing RelativePoolKey with the repository's s3_prefix.
func PoolKey(s3Prefix, component, name, version, architecture string) string {
	return s3Prefix + "/" + RelativePoolKey(component, name, version, architecture)
}

// DistDir is the directory prefix for a distribution's metadata tree.
func DistDir(s3Prefix, distribution string) string {
	return fmt.Sprintf("%s/dists/%s", s3Prefix, distribution)
}

// IndexKey is the current Packages index key for (component, architecture).
func IndexKey(s3Prefix, distribution, component, architecture string) string {
	return fmt.Sprintf("%s/%s/binary-%s/Packages", DistDir(s3Prefix, distribution), component, architecture)
}

// ByHashKey is the historical by-hash copy key for one of the three
// supported algorithms ("MD5Sum", "SHA1", "SHA256").
func ByHashKey(s3Prefix, distribution, component, architecture, algo, hexDigest string) string {
	return fmt.Sprintf("%s/%s/binary-%s/by-hash/%s/%s", DistDir(s3Prefix, distribution), component, architecture, algo, hexDigest)
}

// ReleaseKey, ReleaseGPGKey, InReleaseKey are the three release artifact keys.
func ReleaseKey(s3Prefix, distribution string) string {
	return DistDir(s3Prefix, distribution) + "/Release"
}

func ReleaseGPGKey(s3Prefix, distribution string) string {
	return DistDir(s3Prefix, distribution) + "/Release.gpg"
}

func InReleaseKey(s3Prefix, distribution string) string {
	return DistDir(s3Prefix, distribution) + "/InRelease"
}
