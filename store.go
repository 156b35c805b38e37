package followerwatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// StateStore remembers the last observed follower count between cycles and
// between runs of the process.
type StateStore interface {
	// Load returns the last saved count. Missing, unreadable or malformed
	// state loads as 0; the error, if any, says why and is only meant to be
	// logged.
	Load(ctx context.Context) (int, error)

	// Save replaces the stored count. A failed Save leaves the previously
	// saved count in place.
	Save(ctx context.Context, count int) error
}

type persistedState struct {
	Last int `json:"last"`
}

// FileStore keeps the count in a small JSON file, {"last": N}.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore writing to path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path must be specified")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrapf(err, "error creating state directory %s", dir)
		}
	}
	return &FileStore{Path: path}, nil
}

// Load implements StateStore.
func (fs *FileStore) Load(_ context.Context) (int, error) {
	raw, err := os.ReadFile(fs.Path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "error reading state file %s", fs.Path)
	}
	var st persistedState
	if err := json.Unmarshal(raw, &st); err != nil {
		return 0, errors.Wrapf(err, "error decoding state file %s", fs.Path)
	}
	if st.Last < 0 {
		return 0, errors.Errorf("state file %s holds negative count %d", fs.Path, st.Last)
	}
	return st.Last, nil
}

// Save implements StateStore. The new state is written to a temporary file
// next to the real one and renamed over it, so a reader sees either the old
// count or the new one.
func (fs *FileStore) Save(_ context.Context, count int) error {
	if count < 0 {
		return errors.Errorf("refusing to save negative count %d", count)
	}
	raw, err := json.MarshalIndent(persistedState{Last: count}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error encoding state")
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.Path), filepath.Base(fs.Path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "error creating temporary state file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return errors.Wrap(err, "error writing temporary state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "error syncing temporary state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "error closing temporary state file")
	}
	if err := os.Rename(tmp.Name(), fs.Path); err != nil {
		return errors.Wrapf(err, "error replacing state file %s", fs.Path)
	}
	return nil
}

// MemoryStore is a StateStore that forgets everything when the process exits.
// It is used for one-off checks and tests.
type MemoryStore struct {
	mu    sync.Mutex
	last  int
	saves int
}

// NewMemoryStore returns a MemoryStore that starts out holding last.
func NewMemoryStore(last int) *MemoryStore {
	return &MemoryStore{last: last}
}

// Load implements StateStore.
func (ms *MemoryStore) Load(_ context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.last, nil
}

// Save implements StateStore.
func (ms *MemoryStore) Save(_ context.Context, count int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.last = count
	ms.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (ms *MemoryStore) Saves() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.saves
}
