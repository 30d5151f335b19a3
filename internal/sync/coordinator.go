package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/velmar-soft/recibosgo/internal/config"
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
)

// State is the coordinator's position in its sync lifecycle
type State string

const (
	// StateIdle: no pending operations being worked on
	StateIdle State = "idle"
	// StateSettling: reconnected, waiting out the settle delay before
	// trusting the connection enough to sync
	StateSettling State = "settling"
	// StateSyncing: exactly one engine drain in flight
	StateSyncing State = "syncing"
	// StateProtecting: drain finished, dependent reads are discouraged
	// until read-your-write visibility catches up on the remote side
	StateProtecting State = "protecting"
)

// Coordinator is the UI-facing orchestration layer. It triggers a drain
// after every reconnect (behind a settle delay), tracks pending-count and
// in-flight status for badges, and holds a protection window after each
// sync so dependent reads don't race the just-completed writes.
type Coordinator struct {
	mu sync.Mutex

	engine   *Engine
	store    OfflineStore
	monitor  Connectivity
	resolver *NumberResolver
	cfg      *config.SyncConfig
	userID   string
	logger   *log.Logger

	state        State
	pendingCount int
	lastResult   *SyncResult

	settleTimer  *time.Timer
	protectTimer *time.Timer
	protectGen   int
	stopChan     chan struct{}
	running      bool

	monitorSub int
	storeSub   int

	listeners      map[int]func(SyncResult)
	nextListenerID int
}

// NewCoordinator creates a coordinator for one user session. If logger is
// nil the standard logger is used.
func NewCoordinator(engine *Engine, store OfflineStore, monitor Connectivity, resolver *NumberResolver, cfg *config.SyncConfig, userID string, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		engine:    engine,
		store:     store,
		monitor:   monitor,
		resolver:  resolver,
		cfg:       cfg,
		userID:    userID,
		logger:    logger,
		state:     StateIdle,
		stopChan:  make(chan struct{}),
		listeners: make(map[int]func(SyncResult)),
	}
}

// Start subscribes to connectivity and queue changes and begins the badge
// poll fallback.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	stop := c.stopChan
	c.mu.Unlock()

	c.refreshPendingCount()

	monitorSub := c.monitor.Subscribe(c.onConnectivityChange)
	storeSub := c.store.Subscribe(c.onStoreChange)
	c.mu.Lock()
	c.monitorSub = monitorSub
	c.storeSub = storeSub
	c.mu.Unlock()

	if c.cfg.PendingPollInterval > 0 {
		go c.pollLoop(stop)
	}

	// A queue left over from the previous session syncs immediately if
	// the remote store is already reachable.
	c.maybeScheduleSync()
}

// Stop cancels timers and subscriptions. A drain already in flight runs to
// completion; there is no cancellation primitive.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	if c.protectTimer != nil {
		c.protectTimer.Stop()
	}
	monitorSub, storeSub, stop := c.monitorSub, c.storeSub, c.stopChan
	c.mu.Unlock()

	c.monitor.Unsubscribe(monitorSub)
	c.store.Unsubscribe(storeSub)
	close(stop)
}

// AddOfflineClient queues a client created while disconnected and returns
// its temporary id.
func (c *Coordinator) AddOfflineClient(payload remote.Record) (string, error) {
	return c.store.Enqueue(c.userID, models.OpCreateClient, payload)
}

// AddOfflineReceipt queues a receipt created while disconnected. When the
// payload has no number yet, the resolver assigns the next free one. The
// resolver scans the pending queue too, so two offline receipts for the
// same date get consecutive numbers.
func (c *Coordinator) AddOfflineReceipt(payload remote.Record) (string, error) {
	if number, _ := payload["number"].(string); number == "" {
		date, _ := payload["date"].(string)
		payload["number"] = c.resolver.NextReceiptNumber(context.Background(), c.userID, date)
	}
	return c.store.Enqueue(c.userID, models.OpCreateReceipt, payload)
}

// TriggerSync runs a drain immediately, bypassing the settle delay.
// Returns nil when preconditions are unmet: remote unreachable, or a sync
// already in flight.
func (c *Coordinator) TriggerSync() *SyncResult {
	if !c.monitor.Reachable() {
		return nil
	}

	c.mu.Lock()
	if !c.running || c.state == StateSyncing {
		c.mu.Unlock()
		return nil
	}
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	if c.protectTimer != nil {
		c.protectTimer.Stop()
	}
	c.state = StateSyncing
	c.mu.Unlock()

	result := c.engine.SyncPendingOperations(context.Background(), c.userID)
	if result == nil {
		// Engine was busy with a drain started elsewhere.
		c.mu.Lock()
		if c.state == StateSyncing {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return nil
	}

	c.finishSync(result)
	return result
}

// RefreshCache replaces the local replicas of the given collections with a
// fresh remote read. Errors are returned per call; stale replicas are an
// acceptable degraded state, never a correctness violation.
func (c *Coordinator) RefreshCache(ctx context.Context, collections ...string) error {
	for _, collection := range collections {
		filters := []remote.Filter{{Field: "userId", Value: c.userID}}
		records, err := c.engine.remote.Query(ctx, collection, filters, nil)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", collection, err)
		}
		if err := c.store.Cache(c.userID, collection, records); err != nil {
			return err
		}
	}
	return nil
}

// IsSyncing reports whether a drain is in flight
func (c *Coordinator) IsSyncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSyncing
}

// ShouldShowSyncIndicator covers both the drain and the protection window
// that follows it.
func (c *Coordinator) ShouldShowSyncIndicator() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSyncing || c.state == StateProtecting
}

// PendingOperationsCount returns the tracked queue length
func (c *Coordinator) PendingOperationsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingCount
}

// HasPendingOperations reports whether the queue is non-empty
func (c *Coordinator) HasPendingOperations() bool {
	return c.PendingOperationsCount() > 0
}

// LastSyncResult returns the most recent drain outcome, nil before the
// first drain.
func (c *Coordinator) LastSyncResult() *SyncResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// UserID returns the user session this coordinator serves
func (c *Coordinator) UserID() string {
	return c.userID
}

// State returns the coordinator's current lifecycle state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnSyncComplete registers a listener for the sync-completed broadcast and
// returns its id. Data-fetching components use this to know when a refresh
// is safe.
func (c *Coordinator) OnSyncComplete(fn func(SyncResult)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn
	return id
}

// RemoveSyncCallback removes a completion listener
func (c *Coordinator) RemoveSyncCallback(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// onConnectivityChange reacts to reachability transitions from the monitor
func (c *Coordinator) onConnectivityChange(online bool) {
	if online {
		c.maybeScheduleSync()
		return
	}

	// Connection dropped: a scheduled sync that has not started yet is
	// abandoned; the next reconnect starts a fresh settle period.
	c.mu.Lock()
	if c.state == StateSettling {
		if c.settleTimer != nil {
			c.settleTimer.Stop()
		}
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// onStoreChange reacts to enqueue/remove notifications from the store
func (c *Coordinator) onStoreChange() {
	c.refreshPendingCount()
	c.maybeScheduleSync()
}

// maybeScheduleSync enters Settling when reachable with work queued
func (c *Coordinator) maybeScheduleSync() {
	if !c.monitor.Reachable() {
		return
	}

	c.mu.Lock()
	if !c.running || c.state != StateIdle || c.pendingCount == 0 {
		c.mu.Unlock()
		return
	}
	c.state = StateSettling
	c.logger.Printf("⏱ Reconnected with %d pending operation(s), syncing in %v", c.pendingCount, c.cfg.SettleDelay)
	c.settleTimer = time.AfterFunc(c.cfg.SettleDelay, c.runScheduledSync)
	c.mu.Unlock()
}

// runScheduledSync fires when the settle delay elapses
func (c *Coordinator) runScheduledSync() {
	c.mu.Lock()
	if !c.running || c.state != StateSettling {
		c.mu.Unlock()
		return
	}
	c.state = StateSyncing
	c.mu.Unlock()

	result := c.engine.SyncPendingOperations(context.Background(), c.userID)
	if result == nil {
		c.mu.Lock()
		if c.state == StateSyncing {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return
	}

	c.finishSync(result)
}

// finishSync records the outcome, opens the protection window and fires
// the sync-completed broadcast.
func (c *Coordinator) finishSync(result *SyncResult) {
	c.refreshPendingCount()

	c.mu.Lock()
	c.lastResult = result
	c.state = StateProtecting
	// The generation stamp keeps a timer left over from an earlier sync
	// from closing this window. Stop alone cannot guarantee that: the
	// stale timer may have fired already and be waiting on the mutex.
	c.protectGen++
	gen := c.protectGen
	c.protectTimer = time.AfterFunc(c.cfg.ProtectionWindow, func() { c.endProtection(gen) })
	listeners := make([]func(SyncResult), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(*result)
	}
}

// endProtection closes the protection window opened by generation gen
func (c *Coordinator) endProtection(gen int) {
	c.mu.Lock()
	if gen != c.protectGen || c.state != StateProtecting {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.mu.Unlock()

	// Operations that failed the drain, or arrived during it, get a new
	// settle period.
	c.maybeScheduleSync()
}

// refreshPendingCount re-reads the queue length from the store
func (c *Coordinator) refreshPendingCount() {
	count, err := c.store.PendingCount(c.userID)
	if err != nil {
		c.logger.Printf("⚠️ Pending count refresh failed: %v", err)
		return
	}
	c.mu.Lock()
	c.pendingCount = count
	c.mu.Unlock()
}

// pollLoop is the badge-refresh fallback for counts that went stale
// without a store notification.
func (c *Coordinator) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PendingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refreshPendingCount()
		case <-stop:
			return
		}
	}
}
