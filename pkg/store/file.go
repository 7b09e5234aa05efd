package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/spf13/afero"
)

type FileStore struct {
	BasicStore
	fs afero.Fs
}

func (b *BasicStore) WithFileSystem(fs afero.Fs) *FileStore {
	return &FileStore{*b, fs}
}

func (f FileStore) GetOrCreateFile(path string) (afero.File, error) {
	fileExists, err := afero.Exists(f.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	var file afero.File
	if fileExists {
		file, err = f.fs.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
	} else {
		if err = f.fs.MkdirAll(filepath.Dir(path), 0o775); err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
		file, err = f.fs.Create(path)
		if err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
	}
	return file, nil
}

func (f FileStore) FileExists(filepath string) (bool, error) {
	fileExists, err := afero.Exists(f.fs, filepath)
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	return fileExists, nil
}

func (f FileStore) ReadString(path string) (string, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	defer file.Close() //nolint:errcheck // defer

	buf := new(strings.Builder)
	_, err = io.Copy(buf, file)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return buf.String(), nil
}

func (f FileStore) WriteString(path, data string) error {
	file, err := f.GetOrCreateFile(path)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer file.Close() //nolint:errcheck // defer
	err = file.Truncate(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	_, err = file.WriteString(data)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (f FileStore) UserHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return home, nil
}

// GetIdentityFileContents reads the configured private key file. The key
// material never leaves memory; only its fingerprint is persisted.
func (f FileStore) GetIdentityFileContents() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.config.GetIdentityFile())
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return data, nil
}

// GetIdentityPublicKey returns the contents of the sibling .pub file, or ""
// when the operator keeps no public half next to the private key.
func (f FileStore) GetIdentityPublicKey() (string, error) {
	pubPath := f.config.GetIdentityFile() + ".pub"
	exists, err := afero.Exists(f.fs, pubPath)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	if !exists {
		return "", nil
	}
	data, err := afero.ReadFile(f.fs, pubPath)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return string(data), nil
}

func (f FileStore) GetIdentityFilePath() string {
	return f.config.GetIdentityFile()
}

func (f FileStore) MakeStateDir() (string, error) {
	dir := f.config.GetStateDir()
	err := f.fs.MkdirAll(dir, 0o700)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return dir, nil
}
