package remote

import (
	"log"
	"net/http"
	"sync"
	"time"
)

// Monitor watches whether the remote store is reachable. It probes the
// server health endpoint on a fixed interval and also accepts failed-write
// reports from the client as an early offline signal.
//
// The monitor only derives and publishes the boolean; it never debounces.
// Smoothing out flapping connections is the sync coordinator's job via its
// settle delay.
type Monitor struct {
	mu sync.RWMutex

	healthURL string
	interval  time.Duration

	reachable bool
	running   bool

	subscribers map[int]func(bool)
	nextSubID   int

	stopChan   chan struct{}
	httpClient *http.Client
	logger     *log.Logger
}

// NewMonitor creates a connectivity monitor for the given server base URL.
// If logger is nil the standard logger is used.
func NewMonitor(baseURL string, interval, timeout time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		healthURL:   baseURL + "/health",
		interval:    interval,
		subscribers: make(map[int]func(bool)),
		stopChan:    make(chan struct{}),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Start begins the periodic health probe. The first probe runs immediately.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.CheckNow()
	go m.probeLoop()
}

// Stop stops the health probe
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
}

// Reachable returns whether the remote store answered the last probe
func (m *Monitor) Reachable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reachable
}

// Subscribe registers a callback invoked on every reachability transition.
// It returns a subscription id for Unsubscribe.
func (m *Monitor) Subscribe(fn func(online bool)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return id
}

// Unsubscribe removes a subscription
func (m *Monitor) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}

// NoteFailure records a failed remote write. The next health probe may
// bring the monitor back online.
func (m *Monitor) NoteFailure() {
	m.setReachable(false)
}

// NoteSuccess records a successful remote call
func (m *Monitor) NoteSuccess() {
	m.setReachable(true)
}

// CheckNow probes the health endpoint once and returns the new state
func (m *Monitor) CheckNow() bool {
	resp, err := m.httpClient.Get(m.healthURL)
	if err != nil {
		m.setReachable(false)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	m.setReachable(ok)
	return ok
}

// probeLoop periodically checks remote health
func (m *Monitor) probeLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckNow()
		case <-m.stopChan:
			return
		}
	}
}

// setReachable updates the state and notifies subscribers on transitions
func (m *Monitor) setReachable(online bool) {
	m.mu.Lock()
	if m.reachable == online {
		m.mu.Unlock()
		return
	}
	m.reachable = online
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if online {
		m.logger.Printf("🔗 Remote store reachable")
	} else {
		m.logger.Printf("📴 Remote store unreachable")
	}

	for _, fn := range subs {
		fn(online)
	}
}
