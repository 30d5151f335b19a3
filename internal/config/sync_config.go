package config

import (
	"fmt"
	"os"
	"time"
)

// SyncConfig holds synchronization timing configuration.
//
// The delays exist because a connection that just came back can not be
// trusted immediately (settle delay), and records that were just written
// may not yet be visible to reads on the remote side (protection window).
// All values can be set to zero in tests.
type SyncConfig struct {
	Enabled bool

	// SettleDelay is how long to wait after a reconnect before draining
	// the pending queue.
	SettleDelay time.Duration

	// ProtectionWindow is how long dependent reads are discouraged after
	// a sync run completes.
	ProtectionWindow time.Duration

	// PendingPollInterval is the fallback badge-refresh interval. The
	// pending store pushes change notifications, so this only covers
	// counts that went stale some other way. Zero disables the poll.
	PendingPollInterval time.Duration

	// HealthCheckInterval is how often the connectivity monitor probes
	// the remote store.
	HealthCheckInterval time.Duration

	// RemoteTimeout bounds every individual remote HTTP call.
	RemoteTimeout time.Duration
}

// LoadSyncConfig loads sync configuration from environment variables
func LoadSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled:             getBoolEnv("SYNC_ENABLED", true),
		SettleDelay:         getDurationEnv("SYNC_SETTLE_DELAY", 3*time.Second),
		ProtectionWindow:    getDurationEnv("SYNC_PROTECTION_WINDOW", 2*time.Second),
		PendingPollInterval: getDurationEnv("SYNC_PENDING_POLL_INTERVAL", time.Second),
		HealthCheckInterval: getDurationEnv("SYNC_HEALTH_CHECK_INTERVAL", 10*time.Second),
		RemoteTimeout:       getDurationEnv("SYNC_REMOTE_TIMEOUT", 10*time.Second),
	}
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		var seconds int
		if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
