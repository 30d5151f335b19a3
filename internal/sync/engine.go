package sync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
)

// Engine drains the pending-operation queue against the remote store.
//
// At most one drain runs at a time, guarded by the busy flag; a concurrent
// call returns nil without effect. Operations are processed strictly in
// enqueue order and sequentially, so a later operation in the same drain
// sees the remote effects of an earlier one. One failing operation never
// blocks the rest of the queue.
type Engine struct {
	mu sync.Mutex

	store    Store
	remote   remote.Store
	resolver *NumberResolver
	logger   *log.Logger

	busy           bool
	callbacks      map[int]func(SyncResult)
	nextCallbackID int
}

// NewEngine creates a sync engine. Each engine owns its own busy flag and
// listener list; tests instantiate isolated engines per case. If logger is
// nil the standard logger is used.
func NewEngine(store Store, remoteStore remote.Store, resolver *NumberResolver, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:     store,
		remote:    remoteStore,
		resolver:  resolver,
		logger:    logger,
		callbacks: make(map[int]func(SyncResult)),
	}
}

// SyncPendingOperations drains the queue for a user in FIFO order and
// reports the outcome. Returns nil when another drain is already in
// flight. Failed operations stay queued for the next attempt.
func (e *Engine) SyncPendingOperations(ctx context.Context, userID string) *SyncResult {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		e.logger.Printf("⏳ Sync already in progress, ignoring trigger")
		return nil
	}
	e.busy = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	result := SyncResult{Success: true}

	ops, err := e.store.ListPending(userID)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("list pending: %v", err))
		e.notifyComplete(result)
		return &result
	}

	if len(ops) > 0 {
		e.logger.Printf("🔄 Draining %d pending operation(s)...", len(ops))
	}

	for i := range ops {
		op := &ops[i]

		remoteID, err := e.syncOperation(ctx, userID, op)
		if err != nil {
			e.logger.Printf("⚠️ Operation %s failed, keeping queued: %v", op.TempID, err)
			result.Success = false
			result.FailedOperations++
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%s): %v", op.TempID, op.Kind, err))
			continue
		}

		if err := e.store.MarkSynced(op.TempID, remoteID); err != nil {
			result.Success = false
			result.FailedOperations++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: mark synced: %v", op.TempID, err))
			continue
		}

		if err := e.store.Remove(op.TempID); err != nil {
			// The remote id is recorded on the row, so the next drain
			// retries only this dequeue, never the remote write.
			e.logger.Printf("⚠️ Failed to dequeue %s after remote write: %v", op.TempID, err)
			result.Success = false
			result.FailedOperations++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: dequeue: %v", op.TempID, err))
			continue
		}

		result.SyncedOperations++
	}

	if result.SyncedOperations > 0 || result.FailedOperations > 0 {
		e.logger.Printf("✅ Drain finished: %d synced, %d failed", result.SyncedOperations, result.FailedOperations)
	}

	e.notifyComplete(result)
	return &result
}

// syncOperation writes one pending operation to the remote store and
// returns the remote id of the created record. An operation whose remote
// write was confirmed on an earlier drain is not written again.
func (e *Engine) syncOperation(ctx context.Context, userID string, op *models.PendingOperation) (string, error) {
	if op.RemoteID != "" {
		e.logger.Printf("🔁 Operation %s already confirmed as %s, retrying dequeue", op.TempID, op.RemoteID)
		return op.RemoteID, nil
	}

	payload, err := op.PayloadMap()
	if err != nil {
		return "", err
	}

	collection, err := op.Kind.CollectionFor()
	if err != nil {
		return "", err
	}

	if op.Kind == models.OpCreateReceipt {
		e.resolveNumberCollision(ctx, userID, payload)
	}

	remoteID, err := e.remote.CreateRecord(ctx, collection, remote.Record(payload))
	if err != nil {
		return "", fmt.Errorf("create in %s: %w", collection, err)
	}
	return remoteID, nil
}

// resolveNumberCollision re-checks the remote store for a receipt already
// holding this operation's number and mints a replacement when one exists.
// Collision policy: regenerate, never overwrite. A failed check degrades
// to writing the original number.
func (e *Engine) resolveNumberCollision(ctx context.Context, userID string, payload map[string]interface{}) {
	number, _ := payload["number"].(string)
	if number == "" {
		return
	}

	filters := []remote.Filter{
		{Field: "userId", Value: userID},
		{Field: "number", Value: number},
	}
	existing, err := e.remote.Query(ctx, models.CollectionReceipts, filters, nil)
	if err != nil {
		e.logger.Printf("⚠️ Collision check for %s failed, writing as-is: %v", number, err)
		return
	}
	if len(existing) == 0 {
		return
	}

	date, _ := payload["date"].(string)
	replacement := e.resolver.NextReceiptNumber(ctx, userID, date)
	e.logger.Printf("🔁 Receipt number %s already taken, regenerated as %s", number, replacement)
	payload["number"] = replacement
}

// IsSyncing reports whether a drain is in flight
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// PendingOperationsCount returns the queue length for a user
func (e *Engine) PendingOperationsCount(userID string) int {
	count, err := e.store.PendingCount(userID)
	if err != nil {
		e.logger.Printf("⚠️ Pending count failed: %v", err)
		return 0
	}
	return count
}

// HasPendingOperations reports whether the queue is non-empty
func (e *Engine) HasPendingOperations(userID string) bool {
	return e.PendingOperationsCount(userID) > 0
}

// OnSyncComplete registers a completion listener and returns its id
func (e *Engine) OnSyncComplete(fn func(SyncResult)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextCallbackID
	e.nextCallbackID++
	e.callbacks[id] = fn
	return id
}

// RemoveSyncCallback removes a completion listener
func (e *Engine) RemoveSyncCallback(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.callbacks, id)
}

func (e *Engine) notifyComplete(result SyncResult) {
	e.mu.Lock()
	callbacks := make([]func(SyncResult), 0, len(e.callbacks))
	for _, fn := range e.callbacks {
		callbacks = append(callbacks, fn)
	}
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn(result)
	}
}
