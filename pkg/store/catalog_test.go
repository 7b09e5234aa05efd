package store

import (
	"testing"

	"github.com/hbdev/hbd-cli/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogResolveTypeSpecificBeatsWildcard(t *testing.T) {
	catalog := OperationCatalog{
		"shutdown": {
			CatalogWildcardType: "generic-stop",
			"router":            "router-stop",
		},
	}

	cmd, ok := catalog.Resolve("shutdown", entity.ServerTypeRouter)
	require.True(t, ok)
	assert.Equal(t, "router-stop", cmd)

	cmd, ok = catalog.Resolve("shutdown", entity.ServerTypeCompute)
	require.True(t, ok)
	assert.Equal(t, "generic-stop", cmd)

	_, ok = catalog.Resolve("unknown-op", entity.ServerTypeCompute)
	assert.False(t, ok)
}

func TestDefaultCatalogCoversReleaseOperations(t *testing.T) {
	catalog := defaultOperationCatalog()

	cmd, ok := catalog.Resolve("start_release", entity.ServerTypeCompute)
	require.True(t, ok)
	assert.Contains(t, cmd, "--peer {peer}:{port}")

	cmd, ok = catalog.Resolve("start_release", entity.ServerTypeRouter)
	require.True(t, ok)
	assert.Contains(t, cmd, "--peer {self}:{port}")

	_, ok = catalog.Resolve("start_release", entity.ServerTypeBuild)
	assert.False(t, ok)

	_, ok = catalog.Resolve("shutdown", entity.ServerTypeBuild)
	assert.True(t, ok)
}

func TestGetOperationCatalogMergesOverrides(t *testing.T) {
	t.Setenv("HBD_CATALOG_PATH", "/conf/operations.json")
	fs := MakeMockFileStore()

	err := fs.WriteString("/conf/operations.json", `{
  "shutdown": {"*": "systemctl stop guest"},
  "healthcheck": {"*": "uptime"}
}`)
	require.NoError(t, err)

	catalog, err := fs.GetOperationCatalog()
	require.NoError(t, err)

	cmd, ok := catalog.Resolve("shutdown", entity.ServerTypeRouter)
	require.True(t, ok)
	assert.Equal(t, "systemctl stop guest", cmd)

	cmd, ok = catalog.Resolve("healthcheck", entity.ServerTypeBuild)
	require.True(t, ok)
	assert.Equal(t, "uptime", cmd)

	// defaults not overridden survive
	_, ok = catalog.Resolve("download_release", entity.ServerTypeCompute)
	assert.True(t, ok)
}
