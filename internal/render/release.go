package render

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// ReleaseMeta carries the metadata fields of a Release file; empty Origin,
// Label, Version and Description fields are omitted from the output
// entirely, per spec §4.3, while Suite and Codename are always written.
type ReleaseMeta struct {
	Origin      string
	Label       string
	Version     string
	Suite       string
	Codename    string
	Description string
}

// IndexDescriptor is one row contributing to the Release file's checksum
// tables: a rendered Packages index for a given (component, architecture).
type IndexDescriptor struct {
	Component    string
	Architecture string
	Size         int64
	MD5          string
	SHA1         string
	SHA256       string
}

// ReleaseResult carries the rendered bytes alongside the digests needed to
// populate the Distribution row.
type ReleaseResult struct {
	Contents []byte
	Size     int64
	MD5      string
	SHA1     string
	SHA256   string
}

// RenderRelease produces the exact bytes of a Release file. releaseTS is the
// nonce timestamp supplied by the Index Engine; it is never sampled here, so
// that Sign-Commit can reproduce the same bytes from the same nonce.
func RenderRelease(meta ReleaseMeta, releaseTS time.Time, indexes []IndexDescriptor) ReleaseResult {
	archSet := map[string]struct{}{}
	compSet := map[string]struct{}{}
	for _, idx := range indexes {
		archSet[idx.Architecture] = struct{}{}
		compSet[idx.Component] = struct{}{}
	}
	architectures := sortedKeys(archSet)
	components := sortedKeys(compSet)

	sorted := make([]IndexDescriptor, len(indexes))
	copy(sorted, indexes)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		return a.Architecture < b.Architecture
	})

	var b strings.Builder
	writeField := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}

	writeField("Origin", meta.Origin)
	writeField("Label", meta.Label)
	writeField("Version", meta.Version)
	fmt.Fprintf(&b, "Suite: %s\n", meta.Suite)
	fmt.Fprintf(&b, "Codename: %s\n", meta.Codename)
	fmt.Fprintf(&b, "Date: %s\n", formatReleaseDate(releaseTS))
	fmt.Fprintf(&b, "Architectures: %s\n", strings.Join(architectures, " "))
	fmt.Fprintf(&b, "Components: %s\n", strings.Join(components, " "))
	writeField("Description", meta.Description)
	b.WriteString("Acquire-By-Hash: yes\n")

	writeChecksumTable(&b, "MD5Sum", sorted, func(d IndexDescriptor) string { return d.MD5 })
	writeChecksumTable(&b, "SHA256", sorted, func(d IndexDescriptor) string { return d.SHA256 })

	contents := []byte(b.String())
	md5Sum := md5.Sum(contents)
	sha1Sum := sha1.Sum(contents)
	sha256Sum := sha256.Sum256(contents)
	return ReleaseResult{
		Contents: contents,
		Size:     int64(len(contents)),
		MD5:      hex.EncodeToString(md5Sum[:]),
		SHA1:     hex.EncodeToString(sha1Sum[:]),
		SHA256:   hex.EncodeToString(sha256Sum[:]),
	}
}

// formatReleaseDate formats t per RFC 2822 in UTC with a numeric zone offset
// (e.g. "Mon, 02 Jan 2006 15:04:05 +0000"), matching the original renderer's
// use of the time crate's Rfc2822 formatter.
func formatReleaseDate(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// writeChecksumTable emits "<label>:\n" followed by one right-aligned,
// tab-padded row per index: " <digest>\t<size>\t<component>/binary-<arch>/Packages\n".
func writeChecksumTable(b *strings.Builder, label string, indexes []IndexDescriptor, digest func(IndexDescriptor) string) {
	fmt.Fprintf(b, "%s:\n", label)
	if len(indexes) == 0 {
		return
	}
	tw := tabwriter.NewWriter(b, 0, 0, 1, ' ', tabwriter.AlignRight)
	for _, idx := range indexes {
		path := fmt.Sprintf("%s/binary-%s/Packages", idx.Component, idx.Architecture)
		fmt.Fprintf(tw, " %s\t%d\t%s\n", digest(idx), idx.Size, path)
	}
	tw.Flush()
}
