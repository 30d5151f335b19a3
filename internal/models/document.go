package models

import (
	"time"

	"gorm.io/datatypes"
)

// Collection names served by the document store. The client caches each of
// these locally and the sync engine writes offline-created clients and
// receipts back into them.
const (
	CollectionClients        = "clients"
	CollectionProducts       = "products"
	CollectionCategories     = "categories"
	CollectionReceipts       = "receipts"
	CollectionCompanyProfile = "company_profile"
)

// StoredDocument is one record in the remote document store. Every business
// collection (clients, receipts, products, ...) shares this row shape; the
// typed payload lives in Data.
type StoredDocument struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	Collection string         `gorm:"not null;index:idx_collection_owner" json:"collection"`
	OwnerID    string         `gorm:"not null;index:idx_collection_owner" json:"ownerId"`
	Data       datatypes.JSON `json:"data"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (StoredDocument) TableName() string {
	return "documents"
}
