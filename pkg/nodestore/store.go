package nodestore

import (
	"fmt"
	"os"

	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/types"
)

// Store is the narrow interface over the node store
type Store interface {
	// Upsert merges n keyed by its uuid and reports whether the store
	// changed
	Upsert(n types.NodeConfig) (bool, error)

	// Nodes lists the managed nodes in store order
	Nodes() ([]types.NodeConfig, error)
}

// FileStore keeps nodes in a UCI configuration file shared with other
// sections the agent does not own
type FileStore struct {
	path     string
	lockPath string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lockPath: fileutil.LockPath("", path)}
}

// WithLockDir keeps the lock file in dir instead of next to the store. UCI
// treats every file under /etc/config as a package, so production stores
// lock elsewhere.
func (s *FileStore) WithLockDir(dir string) *FileStore {
	s.lockPath = fileutil.LockPath(dir, s.path)
	return s
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// Upsert implements Store. The file is locked for the whole read-modify-write
// and only rewritten when its content changes.
func (s *FileStore) Upsert(n types.NodeConfig) (bool, error) {
	if n.UUID == "" {
		return false, fmt.Errorf("node has no uuid")
	}

	lock, err := fileutil.LockFile(s.lockPath)
	if err != nil {
		return false, err
	}
	defer lock.Unlock()

	data, _, err := fileutil.ReadOptional(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to read node store: %w", err)
	}

	doc := Parse(data)
	if !doc.Upsert(n) {
		return false, nil
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(s.path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := fileutil.WriteAtomic(s.path, doc.Bytes(), perm); err != nil {
		return false, fmt.Errorf("failed to write node store: %w", err)
	}

	metrics.NodeStoreMutations.Inc()
	logger := log.WithComponent("nodestore")
	logger.Info().
		Str("uuid", n.UUID).
		Str("endpoint", n.Endpoint()).
		Msg("Node store updated")
	return true, nil
}

// Nodes implements Store
func (s *FileStore) Nodes() ([]types.NodeConfig, error) {
	data, _, err := fileutil.ReadOptional(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read node store: %w", err)
	}
	return Parse(data).Nodes(), nil
}
