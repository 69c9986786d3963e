package pendingstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

const pendingFileName = "pending_deployments.json"

// FileStore keeps pending deployments in a single JSON document on disk,
// a map of session id to record. Every mutation reloads the document,
// applies the change, and rewrites the whole file through a temp-file
// rename, so a crash mid-write leaves the previous document intact. The
// mutex serializes mutations within this process; the store assumes it is
// the only writer on the host.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore rooted at dir, creating the directory
// and an empty document on first run. An empty dir defaults to
// $HOME/.wordpress_deployer.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeStorageRead,
				"failed to resolve home directory for pending store",
				err,
			)
		}
		dir = filepath.Join(home, ".wordpress_deployer")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeStorageWrite,
			fmt.Sprintf("failed to create pending store directory %s", dir),
			err,
		)
	}

	s := &FileStore{path: filepath.Join(dir, pendingFileName)}

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(map[string]types.PendingDeployment{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeStorageRead,
			fmt.Sprintf("failed to stat pending store file %s", s.path),
			err,
		)
	}

	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Put(ctx context.Context, sessionID string, record types.PendingDeployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records[sessionID] = record
	return s.write(records)
}

func (s *FileStore) Get(ctx context.Context, sessionID string) (types.PendingDeployment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return types.PendingDeployment{}, false, err
	}
	record, ok := records[sessionID]
	return record, ok, nil
}

func (s *FileStore) Remove(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := records[sessionID]; !ok {
		return nil
	}
	delete(records, sessionID)
	return s.write(records)
}

func (s *FileStore) List(ctx context.Context) (map[string]types.PendingDeployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

// read loads the whole document. A missing file reads as empty so a deleted
// file degrades to a fresh store instead of an error loop.
func (s *FileStore) read() (map[string]types.PendingDeployment, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]types.PendingDeployment{}, nil
		}
		return nil, types.NewAppError(
			types.ErrCodeStorageRead,
			fmt.Sprintf("failed to read pending store file %s", s.path),
			err,
		)
	}

	records := map[string]types.PendingDeployment{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeStorageRead,
			fmt.Sprintf("pending store file %s is corrupt", s.path),
			err,
		)
	}
	return records, nil
}

// write replaces the document atomically: marshal, write a temp file in the
// same directory, fsync, rename over the original.
func (s *FileStore) write(records map[string]types.PendingDeployment) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return types.NewAppError(
			types.ErrCodeStorageWrite,
			"failed to encode pending store document",
			err,
		)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), pendingFileName+".tmp-*")
	if err != nil {
		return types.NewAppError(
			types.ErrCodeStorageWrite,
			"failed to create pending store temp file",
			err,
		)
	}
	tmpName := tmp.Name()

	cleanup := func(cause error, what string) error {
		tmp.Close()
		os.Remove(tmpName)
		return types.NewAppError(
			types.ErrCodeStorageWrite,
			fmt.Sprintf("failed to %s pending store temp file", what),
			cause,
		)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err, "write")
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err, "close")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return types.NewAppError(
			types.ErrCodeStorageWrite,
			"failed to set pending store file permissions",
			err,
		)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return types.NewAppError(
			types.ErrCodeStorageWrite,
			fmt.Sprintf("failed to replace pending store file %s", s.path),
			err,
		)
	}
	return nil
}
