package render

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packhost/repod/internal/debctl"
)

func TestRenderPackagesEmpty(t *testing.T) {
	result := RenderPackages(nil)

	assert.Equal(t, []byte{}, result.Contents)
	emptySHA256 := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(emptySHA256[:]), result.SHA256)
}

func TestRenderPackagesSingleRecordTrailingNewline(t *testing.T) {
	rec := PackageRecord{
		Paragraph:    debctl.Paragraph{{Key: "Package", Value: "foo"}, {Key: "Version", Value: "1.0"}},
		Name:         "foo",
		Version:      "1.0",
		Architecture: "amd64",
		Filename:     "pool/main/f/foo/foo_1.0_amd64.deb",
		Size:         1024,
		MD5:          "md5",
		SHA1:         "sha1",
		SHA256:       "sha256",
	}

	result := RenderPackages([]PackageRecord{rec})
	s := string(result.Contents)

	require.True(t, strings.HasSuffix(s, "\n"), "must end with a trailing newline")
	assert.False(t, strings.HasSuffix(s, "\n\n"), "must not end with a blank line")
	assert.Contains(t, s, "Package: foo\n")
	assert.Contains(t, s, "Filename: pool/main/f/foo/foo_1.0_amd64.deb\n")
}

func TestRenderPackagesMultipleRecordsSeparatedByBlankLine(t *testing.T) {
	recs := []PackageRecord{
		{Paragraph: debctl.Paragraph{{Key: "Package", Value: "a"}}, Name: "a", Version: "1.0", Architecture: "amd64", Filename: "a.deb", Size: 1, MD5: "m", SHA1: "s1", SHA256: "s2"},
		{Paragraph: debctl.Paragraph{{Key: "Package", Value: "b"}}, Name: "b", Version: "1.0", Architecture: "amd64", Filename: "b.deb", Size: 1, MD5: "m", SHA1: "s1", SHA256: "s2"},
	}

	result := RenderPackages(recs)
	s := string(result.Contents)

	assert.Contains(t, s, "SHA256: s2\n\nPackage: b\n", "records are separated by exactly one blank line")
	assert.True(t, strings.HasSuffix(s, "\n"))
	assert.False(t, strings.HasSuffix(s, "\n\n"), "the final record must not get a second trailing newline")
}

func TestRenderPackagesDeterministic(t *testing.T) {
	recs := []PackageRecord{
		{Paragraph: debctl.Paragraph{{Key: "Package", Value: "a"}}, Name: "a", Version: "1.0", Architecture: "amd64", Filename: "a.deb", Size: 1, MD5: "m", SHA1: "s1", SHA256: "s2"},
	}

	first := RenderPackages(recs)
	second := RenderPackages(recs)

	assert.Equal(t, first.Contents, second.Contents)
	assert.Equal(t, first.SHA256, second.SHA256)
}

func TestSortPackageRecords(t *testing.T) {
	recs := []PackageRecord{
		{Name: "b", Version: "1.0", Architecture: "amd64", SHA256: "z"},
		{Name: "a", Version: "2.0", Architecture: "amd64", SHA256: "y"},
		{Name: "a", Version: "1.0", Architecture: "amd64", SHA256: "x"},
	}

	SortPackageRecords(recs)

	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].Name)
	assert.Equal(t, "1.0", recs[0].Version)
	assert.Equal(t, "a", recs[1].Name)
	assert.Equal(t, "2.0", recs[1].Version)
	assert.Equal(t, "b", recs[2].Name)
}
