package storage

import (
	"github.com/cuemby/edgeagent/pkg/types"
)

// Store defines the interface for the pass journal
// This is implemented by BoltDB-backed storage
type Store interface {
	// Record appends a finished pass
	Record(rec types.PassRecord) error

	// List returns up to limit records, newest first. A limit of 0 or less
	// returns every record.
	List(limit int) ([]types.PassRecord, error)

	// Prune keeps the newest keep records and returns how many were removed
	Prune(keep int) (int, error)

	// Utility
	Close() error
}
