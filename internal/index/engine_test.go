package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/content"
)

func TestApplyChangeAddToEmptySet(t *testing.T) {
	pkg := catalog.Package{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc"}
	change := PackageChange{Component: "main", Action: Action{Add: true, SHA256: "abc"}}

	out := applyChange(nil, pkg, change)

	require.Len(t, out, 1)
	assert.Equal(t, "foo", out[0].Name)
	assert.Equal(t, content.RelativePoolKey("main", "foo", "1.0", "amd64"), out[0].Filename)
}

func TestApplyChangeAddIsIdempotent(t *testing.T) {
	pkg := catalog.Package{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc"}
	change := PackageChange{Component: "main", Action: Action{Add: true, SHA256: "abc"}}
	current := []catalog.ComponentPackageRecord{
		{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc", Filename: "existing.deb"},
	}

	out := applyChange(current, pkg, change)

	require.Len(t, out, 1, "re-adding the same identity+sha256 must not duplicate the record")
	assert.Equal(t, "existing.deb", out[0].Filename, "the existing row is kept, not replaced")
}

func TestApplyChangeRemove(t *testing.T) {
	pkg := catalog.Package{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc"}
	change := PackageChange{
		Component: "main",
		Action:    Action{Add: false, Name: "foo", Version: "1.0", Architecture: "amd64"},
	}
	current := []catalog.ComponentPackageRecord{
		{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc"},
		{Name: "bar", Version: "2.0", Architecture: "amd64", SHA256Sum: "def"},
	}

	out := applyChange(current, pkg, change)

	require.Len(t, out, 1)
	assert.Equal(t, "bar", out[0].Name)
}

func TestApplyChangeRemoveMissingIsNoOp(t *testing.T) {
	pkg := catalog.Package{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc"}
	change := PackageChange{
		Component: "main",
		Action:    Action{Add: false, Name: "nope", Version: "9.9", Architecture: "amd64"},
	}
	current := []catalog.ComponentPackageRecord{
		{Name: "foo", Version: "1.0", Architecture: "amd64", SHA256Sum: "abc"},
	}

	out := applyChange(current, pkg, change)

	require.Len(t, out, 1)
	assert.Equal(t, "foo", out[0].Name)
}
