package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const agentStateFileName = "agent.json"

func (f FileStore) getAgentStatePath() string {
	return filepath.Join(f.config.GetStateDir(), agentStateFileName)
}

// GetAgentState returns the persisted agent reference, or nil if no prior
// invocation left one behind.
func (f FileStore) GetAgentState() (*entity.AgentHandle, error) {
	path := f.getAgentStatePath()
	exists, err := afero.Exists(f.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if !exists {
		return nil, nil
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	var handle entity.AgentHandle
	err = json.Unmarshal(data, &handle)
	if err != nil {
		// a corrupt state file just means we respawn
		return nil, nil
	}
	return &handle, nil
}

// SaveAgentState persists connection and process metadata for the running
// agent. The decrypted key and passphrase are never written here.
func (f FileStore) SaveAgentState(handle entity.AgentHandle) error {
	_, err := f.MakeStateDir()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	data, err := json.MarshalIndent(handle, "", "  ")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	path := f.getAgentStatePath()
	err = afero.WriteFile(f.fs, path, data, 0o600)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = f.fs.Chmod(path, 0o600)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (f FileStore) ClearAgentState() error {
	path := f.getAgentStatePath()
	err := f.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// fallback for filesystems that cannot flock (e.g. memfs in tests)
var agentStateMu sync.Mutex

// WithAgentStateLock runs fn while holding an advisory lock on the agent
// state, so two concurrent invocations do not race to spawn duplicate agents.
func (f FileStore) WithAgentStateLock(fn func() error) error {
	_, err := f.MakeStateDir()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	lockPath := f.getAgentStatePath() + ".lock"
	file, err := f.GetOrCreateFile(lockPath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer file.Close() //nolint:errcheck // defer

	if osFile, ok := file.(*os.File); ok {
		err = unix.Flock(int(osFile.Fd()), unix.LOCK_EX)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		defer unix.Flock(int(osFile.Fd()), unix.LOCK_UN) //nolint:errcheck // defer
	} else {
		agentStateMu.Lock()
		defer agentStateMu.Unlock()
	}

	err = fn()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
