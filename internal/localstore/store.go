// Package localstore is the durable client-side store: read-through caches
// of remote collections plus the FIFO queue of not-yet-synced write
// intents. Both survive process restarts.
package localstore

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store persists cached collections and pending operations in a local
// SQLite database. Storage errors surface to the caller of the mutating
// operation; nothing is retried internally.
type Store struct {
	db *gorm.DB

	mu          sync.Mutex
	subscribers map[int]func()
	nextSubID   int
}

// Open opens (creating if necessary) the local store at path
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	if err := db.AutoMigrate(&models.PendingOperation{}, &models.CachedCollection{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	return &Store{
		db:          db,
		subscribers: make(map[int]func()),
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Cache overwrites the local replica of a collection. Last write wins;
// there are no merge semantics.
func (s *Store) Cache(userID, collection string, records []remote.Record) error {
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", collection, err)
	}

	replica := models.CachedCollection{
		UserID:     userID,
		Collection: collection,
		Records:    encoded,
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "collection"}},
		DoUpdates: clause.AssignmentColumns([]string{"records", "updated_at"}),
	}).Create(&replica).Error
	if err != nil {
		return fmt.Errorf("cache %s: %w", collection, err)
	}
	return nil
}

// GetCached returns the current replica of a collection; empty if the
// collection was never cached.
func (s *Store) GetCached(userID, collection string) ([]remote.Record, error) {
	var replica models.CachedCollection
	err := s.db.Where("user_id = ? AND collection = ?", userID, collection).First(&replica).Error
	if err == gorm.ErrRecordNotFound {
		return []remote.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s cache: %w", collection, err)
	}

	var records []remote.Record
	if err := json.Unmarshal(replica.Records, &records); err != nil {
		return nil, fmt.Errorf("decode %s cache: %w", collection, err)
	}
	return records, nil
}

// Enqueue appends a write intent to the pending queue and returns its
// temporary identifier synchronously, so the caller can optimistically
// render the new record.
func (s *Store) Enqueue(userID string, kind models.OperationKind, payload remote.Record) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode pending payload: %w", err)
	}

	op := models.PendingOperation{
		TempID:  "tmp-" + uuid.New().String(),
		UserID:  userID,
		Kind:    kind,
		Payload: encoded,
	}

	if err := s.db.Create(&op).Error; err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}

	s.notify()
	return op.TempID, nil
}

// ListPending returns the queued operations for a user in FIFO order.
// The auto-increment id breaks ties between operations created within the
// same timestamp granularity.
func (s *Store) ListPending(userID string) ([]models.PendingOperation, error) {
	var ops []models.PendingOperation
	err := s.db.Where("user_id = ?", userID).
		Order("created_at asc").
		Order("id asc").
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return ops, nil
}

// MarkSynced records the confirmed remote id on a pending operation. The
// sync engine writes it between the remote create and the dequeue, so a
// dequeue that fails can be retried without repeating the remote write.
func (s *Store) MarkSynced(tempID, remoteID string) error {
	err := s.db.Model(&models.PendingOperation{}).
		Where("temp_id = ?", tempID).
		Update("remote_id", remoteID).Error
	if err != nil {
		return fmt.Errorf("mark %s synced: %w", tempID, err)
	}
	return nil
}

// Remove deletes a pending operation. Called by the sync engine only after
// the remote store confirmed the write.
func (s *Store) Remove(tempID string) error {
	if err := s.db.Where("temp_id = ?", tempID).Delete(&models.PendingOperation{}).Error; err != nil {
		return fmt.Errorf("remove %s: %w", tempID, err)
	}
	s.notify()
	return nil
}

// PendingCount returns the number of queued operations for a user
func (s *Store) PendingCount(userID string) (int, error) {
	var count int64
	err := s.db.Model(&models.PendingOperation{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return int(count), nil
}

// Subscribe registers a callback fired after every enqueue and remove, so
// UI badges track the queue without polling. Returns a subscription id.
func (s *Store) Subscribe(fn func()) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return id
}

// Unsubscribe removes a subscription
func (s *Store) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
