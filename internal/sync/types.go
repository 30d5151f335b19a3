// Package sync implements the offline-first synchronization core: the
// receipt numbering resolver, the drain engine for the pending-operation
// queue, and the connectivity-driven coordinator the UI talks to.
package sync

import (
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
)

// SyncResult is the outcome of one drain run. It is reported to listeners
// and never persisted.
type SyncResult struct {
	Success          bool     `json:"success"`
	SyncedOperations int      `json:"syncedOperations"`
	FailedOperations int      `json:"failedOperations"`
	Errors           []string `json:"errors"`
}

// Store is the sync core's read/consume view of the local store. The
// engine drains it, the numbering resolver scans it.
type Store interface {
	GetCached(userID, collection string) ([]remote.Record, error)
	ListPending(userID string) ([]models.PendingOperation, error)
	MarkSynced(tempID, remoteID string) error
	Remove(tempID string) error
	PendingCount(userID string) (int, error)
}

// OfflineStore extends Store with the write and change-notification
// surface the coordinator needs.
type OfflineStore interface {
	Store
	Cache(userID, collection string, records []remote.Record) error
	Enqueue(userID string, kind models.OperationKind, payload remote.Record) (string, error)
	Subscribe(fn func()) int
	Unsubscribe(id int)
}

// Connectivity is the coordinator's view of the connectivity monitor
type Connectivity interface {
	Reachable() bool
	Subscribe(fn func(online bool)) int
	Unsubscribe(id int)
}
