package inventory

import (
	"testing"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fleet() []entity.ServerDescriptor {
	return []entity.ServerDescriptor{
		{ID: "1", Name: "router-1", Addr: "10.0.0.1", Type: entity.ServerTypeRouter},
		{ID: "2", Name: "compute-1", Addr: "10.0.0.2", Type: entity.ServerTypeCompute},
		{ID: "9", Name: "build-1", Addr: "10.0.0.9", Type: entity.ServerTypeBuild},
		{ID: "10", Name: "build-2", Addr: "10.0.0.10", Type: entity.ServerTypeBuild},
	}
}

func ids(servers []entity.ServerDescriptor) []string {
	return lo.Map(servers, func(s entity.ServerDescriptor, _ int) string { return s.ID })
}

func TestResolveAll(t *testing.T) {
	sel, err := Resolve("all", fleet())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "9", "10"}, ids(sel))
}

func TestResolveByType(t *testing.T) {
	sel, err := Resolve("build", fleet())
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "10"}, ids(sel))
}

func TestResolveByIDList(t *testing.T) {
	sel, err := Resolve("9,10", fleet())
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "10"}, ids(sel))

	sel, err = Resolve(" 2 , 1 ", fleet())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(sel))
}

func TestResolveNoMatchIsSelectionError(t *testing.T) {
	_, err := Resolve("gpu", fleet())
	require.Error(t, err)
	var selErr *breverrors.SelectionError
	assert.ErrorAs(t, err, &selErr)
	assert.Equal(t, "gpu", selErr.Selector)
}

func TestResolveNeverDuplicates(t *testing.T) {
	servers := append(fleet(), entity.ServerDescriptor{ID: "9", Name: "build-1-again", Addr: "10.0.0.9", Type: entity.ServerTypeBuild})

	sel, err := Resolve("9,9,10", servers)
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "10"}, ids(sel))

	sel, err = Resolve("all", servers)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "9", "10"}, ids(sel))
}

func TestByTypeHelpers(t *testing.T) {
	assert.Equal(t, []string{"9", "10"}, ids(ByType(fleet(), entity.ServerTypeBuild)))
	assert.Equal(t, []string{"1", "2"}, ids(ExcludingType(fleet(), entity.ServerTypeBuild)))
}
