package store

import (
	"path/filepath"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/spf13/afero"
)

// GetTypeConfig returns the local per-type guest config pushed by the
// update-config operation, or "" when no file exists for that type.
func (f FileStore) GetTypeConfig(serverType entity.ServerType) (string, error) {
	path := filepath.Join(f.config.GetStateDir(), "types", string(serverType)+".jsonc")
	exists, err := afero.Exists(f.fs, path)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	if !exists {
		return "", nil
	}
	content, err := f.ReadString(path)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return content, nil
}
