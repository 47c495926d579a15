package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReleaseDateNumericOffset(t *testing.T) {
	ts := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)

	got := formatReleaseDate(ts)

	assert.Equal(t, "Fri, 31 Jul 2026 12:00:00 +0000", got)
}

func TestRenderReleaseDeterministic(t *testing.T) {
	meta := ReleaseMeta{Origin: "Acme", Suite: "stable", Codename: "stable"}
	ts := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
	indexes := []IndexDescriptor{
		{Component: "main", Architecture: "amd64", Size: 10, MD5: "m", SHA1: "s1", SHA256: "s2"},
	}

	first := RenderRelease(meta, ts, indexes)
	second := RenderRelease(meta, ts, indexes)

	assert.Equal(t, first.Contents, second.Contents)
	assert.Equal(t, first.SHA256, second.SHA256)
}

func TestRenderReleaseEmptyIndexesStillEmitsHeaders(t *testing.T) {
	meta := ReleaseMeta{Suite: "stable", Codename: "stable"}
	ts := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)

	result := RenderRelease(meta, ts, nil)
	s := string(result.Contents)

	assert.Contains(t, s, "Suite: stable\n")
	assert.Contains(t, s, "Architectures: \n")
	assert.Contains(t, s, "Components: \n")
	assert.Contains(t, s, "Acquire-By-Hash: yes\n")
	assert.NotContains(t, s, "Origin:", "empty optional fields must be omitted")
}

func TestRenderReleaseOmitsEmptyOptionalFields(t *testing.T) {
	meta := ReleaseMeta{Suite: "stable", Codename: "stable"}
	ts := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)

	result := RenderRelease(meta, ts, nil)
	s := string(result.Contents)

	assert.NotContains(t, s, "Label:")
	assert.NotContains(t, s, "Version:")
	assert.NotContains(t, s, "Description:")
}

func TestRenderReleaseSortsArchitecturesAndComponents(t *testing.T) {
	meta := ReleaseMeta{Suite: "stable", Codename: "stable"}
	ts := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
	indexes := []IndexDescriptor{
		{Component: "universe", Architecture: "arm64", Size: 1, MD5: "m", SHA1: "s1", SHA256: "s2"},
		{Component: "main", Architecture: "amd64", Size: 1, MD5: "m", SHA1: "s1", SHA256: "s2"},
	}

	result := RenderRelease(meta, ts, indexes)
	s := string(result.Contents)

	require.Contains(t, s, "Architectures: amd64 arm64\n")
	require.Contains(t, s, "Components: main universe\n")
}
