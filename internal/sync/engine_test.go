package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
)

const testUser = "user-1"

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestEngine(store *memStore, rem *fakeRemote) *Engine {
	resolver := NewNumberResolver(rem, store, nil, quietLogger())
	return NewEngine(store, rem, resolver, quietLogger())
}

func TestSyncDrainsInEnqueueOrder(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	for _, name := range []string{"Acme Corp", "Beta LLC", "Gamma SA"} {
		if _, err := store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": name}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if !result.Success || result.SyncedOperations != 3 || result.FailedOperations != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got := rem.createdField("name")
	want := []string{"Acme Corp", "Beta LLC", "Gamma SA"}
	if len(got) != len(want) {
		t.Fatalf("created %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("created[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if count, _ := store.PendingCount(testUser); count != 0 {
		t.Errorf("queue not drained, %d left", count)
	}
}

func TestSyncKeepsFailedOperationQueued(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	rem.failCreate = func(collection string, payload remote.Record) error {
		if payload["name"] == "Beta LLC" {
			return errors.New("server rejected record")
		}
		return nil
	}
	engine := newTestEngine(store, rem)

	for _, name := range []string{"Acme Corp", "Beta LLC", "Gamma SA"} {
		store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": name})
	}

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if result.Success {
		t.Error("result.Success = true with a failed operation")
	}
	if result.SyncedOperations != 2 || result.FailedOperations != 1 {
		t.Fatalf("got %d synced / %d failed, want 2 / 1", result.SyncedOperations, result.FailedOperations)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(result.Errors))
	}

	ops, _ := store.ListPending(testUser)
	if len(ops) != 1 {
		t.Fatalf("%d operations left queued, want 1", len(ops))
	}
	payload, _ := ops[0].PayloadMap()
	if payload["name"] != "Beta LLC" {
		t.Errorf("wrong operation kept queued: %v", payload["name"])
	}
}

func TestSyncReturnsNilWhileBusy(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	rem.gate = make(chan struct{})
	engine := newTestEngine(store, rem)

	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Acme Corp"})

	done := make(chan *SyncResult, 1)
	go func() {
		done <- engine.SyncPendingOperations(context.Background(), testUser)
	}()

	waitUntil(t, time.Second, engine.IsSyncing, "first drain start")

	if result := engine.SyncPendingOperations(context.Background(), testUser); result != nil {
		t.Fatalf("concurrent drain returned %+v, want nil", result)
	}

	close(rem.gate)
	result := <-done
	if result == nil || result.SyncedOperations != 1 {
		t.Fatalf("first drain result: %+v", result)
	}
	if engine.IsSyncing() {
		t.Error("busy flag not cleared after drain")
	}
}

func TestSyncRegeneratesCollidingReceiptNumber(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	rem.seed(models.CollectionReceipts, remote.Record{
		"id": "rec-existing", "userId": testUser, "number": "01/15/01/2024", "date": "2024-01-15",
	})
	engine := newTestEngine(store, rem)

	store.Enqueue(testUser, models.OpCreateReceipt, remote.Record{
		"userId": testUser, "number": "01/15/01/2024", "date": "2024-01-15", "total": "120.00",
	})

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result == nil || !result.Success || result.SyncedOperations != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	numbers := rem.createdField("number")
	if len(numbers) != 1 || numbers[0] != "02/15/01/2024" {
		t.Fatalf("created numbers = %v, want [02/15/01/2024]", numbers)
	}
}

func TestSyncTwoQueuedReceiptsStayDistinctAfterRegeneration(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	// Numbers assigned offline: 01 and 02 for the same day.
	store.Enqueue(testUser, models.OpCreateReceipt, remote.Record{
		"userId": testUser, "number": "01/15/01/2024", "date": "2024-01-15",
	})
	store.Enqueue(testUser, models.OpCreateReceipt, remote.Record{
		"userId": testUser, "number": "02/15/01/2024", "date": "2024-01-15",
	})

	// Another device took 01 in the meantime.
	rem.seed(models.CollectionReceipts, remote.Record{
		"id": "rec-other", "userId": testUser, "number": "01/15/01/2024", "date": "2024-01-15",
	})

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result == nil || result.SyncedOperations != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	numbers := rem.createdField("number")
	if len(numbers) != 2 {
		t.Fatalf("created %d receipts, want 2", len(numbers))
	}
	// The first queued receipt collides and regenerates past both the
	// remote record and the still-queued 02; the second keeps its number.
	if numbers[0] != "03/15/01/2024" || numbers[1] != "02/15/01/2024" {
		t.Errorf("created numbers = %v, want [03/15/01/2024 02/15/01/2024]", numbers)
	}
	if numbers[0] == numbers[1] {
		t.Error("duplicate receipt numbers written")
	}
}

func TestSyncCountsDequeueFailureAsFailed(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Acme Corp"})
	store.removeErr = errors.New("disk full")

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if result.Success || result.FailedOperations != 1 || result.SyncedOperations != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if rem.createdCount() != 1 {
		t.Errorf("remote write count = %d, want 1", rem.createdCount())
	}
}

func TestRedrainAfterDequeueFailureDoesNotDuplicate(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Acme Corp"})
	store.Enqueue(testUser, models.OpCreateReceipt, remote.Record{
		"number": "01/15/01/2024",
		"date":   "2024-01-15",
	})

	store.removeErr = errors.New("database is locked")
	first := engine.SyncPendingOperations(context.Background(), testUser)
	if first.Success || first.FailedOperations != 2 {
		t.Fatalf("first drain: %+v", first)
	}
	if rem.createdCount() != 2 {
		t.Fatalf("first drain wrote %d records, want 2", rem.createdCount())
	}

	store.removeErr = nil
	second := engine.SyncPendingOperations(context.Background(), testUser)
	if !second.Success || second.SyncedOperations != 2 {
		t.Fatalf("second drain: %+v", second)
	}
	if rem.createdCount() != 2 {
		t.Errorf("re-drain duplicated remote records, %d writes", rem.createdCount())
	}
	for _, number := range rem.createdField("number") {
		if number == "02/15/01/2024" {
			t.Error("re-drain regenerated the receipt number instead of skipping the write")
		}
	}

	count, err := store.PendingCount(testUser)
	if err != nil || count != 0 {
		t.Errorf("queue after re-drain: count=%d err=%v", count, err)
	}
}

func TestMarkSyncedFailureKeepsOperationQueued(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Acme Corp"})
	store.markErr = errors.New("disk full")

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result.Success || result.FailedOperations != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	count, _ := store.PendingCount(testUser)
	if count != 1 {
		t.Errorf("pending count = %d, want 1", count)
	}
}

func TestSyncCompleteCallbacks(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	var got []SyncResult
	id := engine.OnSyncComplete(func(r SyncResult) { got = append(got, r) })

	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Acme Corp"})
	engine.SyncPendingOperations(context.Background(), testUser)

	if len(got) != 1 || got[0].SyncedOperations != 1 {
		t.Fatalf("callback results: %+v", got)
	}

	engine.RemoveSyncCallback(id)
	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Beta LLC"})
	engine.SyncPendingOperations(context.Background(), testUser)

	if len(got) != 1 {
		t.Errorf("removed callback still fired, %d results", len(got))
	}
}

func TestSyncSkipsOtherUsersOperations(t *testing.T) {
	store := newMemStore()
	rem := newFakeRemote()
	engine := newTestEngine(store, rem)

	store.Enqueue(testUser, models.OpCreateClient, remote.Record{"name": "Acme Corp"})
	store.Enqueue("user-2", models.OpCreateClient, remote.Record{"name": "Other Co"})

	result := engine.SyncPendingOperations(context.Background(), testUser)
	if result == nil || result.SyncedOperations != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if count, _ := store.PendingCount("user-2"); count != 1 {
		t.Errorf("other user's queue touched, %d left", count)
	}
}

// waitUntil polls cond until it holds or the deadline passes
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
