package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/driftsync/driftsync/internal/utils"
)

const (
	metadataDir = ".data"
	logsDir     = "logs"
	lockFile    = "driftsync.lock"
	storeFile   = "sync.db"
)

var ErrDataDirLocked = errors.New("data dir locked by another process")

// Workspace is the daemon's on-disk layout under the data dir. The lock
// file keeps a second daemon from opening the same store.
type Workspace struct {
	Root        string
	MetadataDir string
	LogsDir     string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir %s: %w", rootDir, err)
	}

	metadata := filepath.Join(root, metadataDir)

	return &Workspace{
		Root:        root,
		MetadataDir: metadata,
		LogsDir:     filepath.Join(root, logsDir),
		flock:       flock.New(filepath.Join(metadata, lockFile)),
	}, nil
}

// StorePath is where the sync database lives.
func (w *Workspace) StorePath() string {
	return filepath.Join(w.MetadataDir, storeFile)
}

// Setup creates the directory layout and takes the instance lock.
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return ErrDataDirLocked
	}

	slog.Info("workspace", "root", w.Root)
	return nil
}

// Unlock releases the instance lock and removes the lock file.
func (w *Workspace) Unlock() error {
	// never delete a lock file some other process holds
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock data dir: %w", err)
	}

	return os.Remove(w.flock.Path())
}
