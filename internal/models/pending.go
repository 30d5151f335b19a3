package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// OperationKind identifies the type of a queued offline write
type OperationKind string

const (
	OpCreateClient  OperationKind = "CREATE_CLIENT"
	OpCreateReceipt OperationKind = "CREATE_RECEIPT"
)

// CollectionFor returns the remote collection a pending operation of this
// kind writes into.
func (k OperationKind) CollectionFor() (string, error) {
	switch k {
	case OpCreateClient:
		return CollectionClients, nil
	case OpCreateReceipt:
		return CollectionReceipts, nil
	default:
		return "", fmt.Errorf("unknown operation kind: %s", k)
	}
}

// PendingOperation is a locally queued write intent that has not yet been
// confirmed against the remote store. It is owned by the pending store
// until the sync engine removes it after a successful remote write.
// RemoteID is set once the remote write is confirmed; a row that still
// carries one only needs its dequeue retried, never a second write.
type PendingOperation struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	TempID    string         `gorm:"uniqueIndex;not null" json:"id"`
	UserID    string         `gorm:"not null;index" json:"userId"`
	Kind      OperationKind  `gorm:"type:varchar(50);not null" json:"kind"`
	Payload   datatypes.JSON `json:"payload"`
	RemoteID  string         `gorm:"type:varchar(64)" json:"remoteId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TableName specifies the table name
func (PendingOperation) TableName() string {
	return "pending_operations"
}

// PayloadMap decodes the stored payload into a generic record
func (p *PendingOperation) PayloadMap() (map[string]interface{}, error) {
	record := make(map[string]interface{})
	if len(p.Payload) == 0 {
		return record, nil
	}
	if err := json.Unmarshal(p.Payload, &record); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", p.TempID, err)
	}
	return record, nil
}

// CachedCollection is the local read replica of one remote collection for
// one user. Overwritten wholesale on every successful remote fetch; never
// merged.
type CachedCollection struct {
	ID         uint           `gorm:"primaryKey" json:"-"`
	UserID     string         `gorm:"not null;uniqueIndex:idx_user_collection" json:"userId"`
	Collection string         `gorm:"not null;uniqueIndex:idx_user_collection" json:"collection"`
	Records    datatypes.JSON `json:"records"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// TableName specifies the table name
func (CachedCollection) TableName() string {
	return "cached_collections"
}
