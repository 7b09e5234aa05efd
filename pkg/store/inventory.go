package store

import (
	"encoding/json"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// GetInventory loads the server descriptors, preserving file order. That
// order is the deterministic order sequential dispatch walks targets in.
func (f FileStore) GetInventory() ([]entity.ServerDescriptor, error) {
	data, err := afero.ReadFile(f.fs, f.config.GetInventoryPath())
	if err != nil {
		return nil, breverrors.WrapAndTrace(err, "reading server inventory")
	}
	var servers []entity.ServerDescriptor
	err = json.Unmarshal(data, &servers)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err, "parsing server inventory")
	}
	servers = lo.UniqBy(servers, func(s entity.ServerDescriptor) string { return s.ID })
	return servers, nil
}

func (f FileStore) WriteInventory(servers []entity.ServerDescriptor) error {
	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = f.WriteString(f.config.GetInventoryPath(), string(data))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (f FileStore) GetDefaultRemoteUser() string {
	return f.config.GetRemoteUser()
}
