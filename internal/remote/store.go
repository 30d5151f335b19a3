// Package remote defines the client-side view of the remote document store
// and the connectivity monitor that watches its reachability.
package remote

import "context"

// Record is one document as the store returns it: the stored payload plus
// an "id" field carrying the remote identifier.
type Record map[string]interface{}

// Filter restricts a query to records whose payload field equals Value.
type Filter struct {
	Field string
	Value interface{}
}

// Order sorts query results by a field.
type Order struct {
	Field      string
	Descending bool
}

// Store is the remote document store collaborator. The sync engine and the
// numbering resolver consume it; nothing in the sync core depends on the
// HTTP implementation directly.
type Store interface {
	// Query returns the records of a collection matching all filters,
	// sorted by order when given.
	Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Record, error)

	// CreateRecord writes payload as a new record and returns the remote
	// identifier. Collision checking happens before this call, never
	// inside it.
	CreateRecord(ctx context.Context, collection string, payload Record) (string, error)

	// UpdateRecord applies a partial patch to an existing record. Used by
	// the online edit path only, not by the drain.
	UpdateRecord(ctx context.Context, collection string, id string, patch Record) error
}
