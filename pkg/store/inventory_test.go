package store

import (
	"testing"

	"github.com/hbdev/hbd-cli/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInventoryPreservesOrderAndDedupes(t *testing.T) {
	t.Setenv("HBD_INVENTORY_PATH", "/conf/servers.json")
	fs := MakeMockFileStore()

	err := fs.WriteString("/conf/servers.json", `[
  {"id": "1", "name": "router-1", "ip": "10.0.0.1", "type": "router"},
  {"id": "2", "name": "compute-1", "ip": "10.0.0.2", "type": "compute"},
  {"id": "9", "name": "build-1", "ip": "10.0.0.9", "type": "build"},
  {"id": "9", "name": "build-1-dup", "ip": "10.0.0.99", "type": "build"},
  {"id": "10", "name": "build-2", "ip": "10.0.0.10", "type": "build"}
]`)
	require.NoError(t, err)

	servers, err := fs.GetInventory()
	require.NoError(t, err)
	require.Len(t, servers, 4)
	assert.Equal(t, []string{"1", "2", "9", "10"}, []string{servers[0].ID, servers[1].ID, servers[2].ID, servers[3].ID})
	assert.Equal(t, "router-1", servers[0].Name)
	assert.Equal(t, entity.ServerTypeBuild, servers[2].Type)
	// first occurrence of a duplicated id wins
	assert.Equal(t, "10.0.0.9", servers[2].Addr)
}

func TestGetInventoryMissingFile(t *testing.T) {
	t.Setenv("HBD_INVENTORY_PATH", "/conf/servers.json")
	fs := MakeMockFileStore()

	_, err := fs.GetInventory()
	assert.Error(t, err)
}

func TestWriteInventoryRoundTrip(t *testing.T) {
	t.Setenv("HBD_INVENTORY_PATH", "/conf/servers.json")
	fs := MakeMockFileStore()

	in := []entity.ServerDescriptor{
		{ID: "1", Name: "router-1", Addr: "10.0.0.1", Type: entity.ServerTypeRouter},
		{ID: "2", Name: "compute-1", Addr: "10.0.0.2", Port: 2222, User: "ops", Type: entity.ServerTypeCompute},
	}
	require.NoError(t, fs.WriteInventory(in))

	out, err := fs.GetInventory()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
