package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
)

// memStore is an in-memory OfflineStore for tests
type memStore struct {
	mu          sync.Mutex
	pending     []models.PendingOperation
	cached      map[string]map[string][]remote.Record
	subscribers map[int]func()
	nextSub     int
	nextSeq     int

	listErr   error
	markErr   error
	removeErr error
}

func newMemStore() *memStore {
	return &memStore{
		cached:      make(map[string]map[string][]remote.Record),
		subscribers: make(map[int]func()),
	}
}

func (s *memStore) GetCached(userID, collection string) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Record{}, s.cached[userID][collection]...), nil
}

func (s *memStore) Cache(userID, collection string, records []remote.Record) error {
	s.mu.Lock()
	if s.cached[userID] == nil {
		s.cached[userID] = make(map[string][]remote.Record)
	}
	s.cached[userID][collection] = append([]remote.Record{}, records...)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Enqueue(userID string, kind models.OperationKind, payload remote.Record) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.nextSeq++
	tempID := fmt.Sprintf("tmp-%d", s.nextSeq)
	s.pending = append(s.pending, models.PendingOperation{
		TempID:  tempID,
		UserID:  userID,
		Kind:    kind,
		Payload: raw,
	})
	s.mu.Unlock()

	s.notify()
	return tempID, nil
}

func (s *memStore) ListPending(userID string) ([]models.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var ops []models.PendingOperation
	for _, op := range s.pending {
		if op.UserID == userID {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (s *memStore) MarkSynced(tempID, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	for i := range s.pending {
		if s.pending[i].TempID == tempID {
			s.pending[i].RemoteID = remoteID
			break
		}
	}
	return nil
}

func (s *memStore) Remove(tempID string) error {
	s.mu.Lock()
	if s.removeErr != nil {
		s.mu.Unlock()
		return s.removeErr
	}
	for i, op := range s.pending {
		if op.TempID == tempID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *memStore) PendingCount(userID string) (int, error) {
	ops, err := s.ListPending(userID)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (s *memStore) Subscribe(fn func()) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return id
}

func (s *memStore) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

func (s *memStore) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// fakeRemote records writes and answers queries from in-memory collections.
// Created records become immediately queryable, so a collision check inside
// a drain sees the drain's own earlier writes.
type fakeRemote struct {
	mu      sync.Mutex
	records map[string][]remote.Record
	created []remote.Record
	nextID  int

	queryErr   error
	failCreate func(collection string, payload remote.Record) error
	gate       chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string][]remote.Record)}
}

func (r *fakeRemote) seed(collection string, rec remote.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[collection] = append(r.records[collection], rec)
}

func (r *fakeRemote) Query(ctx context.Context, collection string, filters []remote.Filter, order *remote.Order) ([]remote.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []remote.Record
	for _, rec := range r.records[collection] {
		match := true
		for _, f := range filters {
			if rec[f.Field] != f.Value {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRemote) CreateRecord(ctx context.Context, collection string, payload remote.Record) (string, error) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	if r.failCreate != nil {
		if err := r.failCreate(collection, payload); err != nil {
			return "", err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("rec-%d", r.nextID)
	stored := remote.Record{"id": id}
	for k, v := range payload {
		stored[k] = v
	}
	r.records[collection] = append(r.records[collection], stored)
	r.created = append(r.created, stored)
	return id, nil
}

func (r *fakeRemote) UpdateRecord(ctx context.Context, collection string, id string, patch remote.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records[collection] {
		if rec["id"] == id {
			for k, v := range patch {
				rec[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("record %s not found in %s", id, collection)
}

func (r *fakeRemote) createdField(field string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rec := range r.created {
		value, _ := rec[field].(string)
		out = append(out, value)
	}
	return out
}

func (r *fakeRemote) createdCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

// fakeMonitor is a switchable Connectivity for tests
type fakeMonitor struct {
	mu          sync.Mutex
	reachable   bool
	subscribers map[int]func(bool)
	nextSub     int
}

func newFakeMonitor(reachable bool) *fakeMonitor {
	return &fakeMonitor{reachable: reachable, subscribers: make(map[int]func(bool))}
}

func (m *fakeMonitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

func (m *fakeMonitor) SetReachable(online bool) {
	m.mu.Lock()
	if m.reachable == online {
		m.mu.Unlock()
		return
	}
	m.reachable = online
	fns := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

func (m *fakeMonitor) Subscribe(fn func(online bool)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	return id
}

func (m *fakeMonitor) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}
