package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hayashida/kengen/internal/repositories"
)

// snapshotChannel is the LISTEN/NOTIFY channel mutations announce on.
// It matches the channel the repositories notify from within their
// transactions.
const snapshotChannel = "kengen_snapshot"

// SnapshotManager manages snapshot tokens for cache consistency across distributed instances.
// It uses PostgreSQL LISTEN/NOTIFY for instant synchronization when data changes.
// It implements repositories.SnapshotProvider.
type SnapshotManager struct {
	mu           sync.RWMutex
	currentToken string
	source       repositories.SnapshotProvider
	refreshTTL   time.Duration
	lastRefresh  time.Time
	listener     *pq.Listener
	connStr      string
	stopCh       chan struct{}
	stopped      bool
}

// NewSnapshotManager creates a new SnapshotManager.
// source yields fresh tokens for the initial fetch and the TTL fallback.
// connStr is the PostgreSQL connection string for LISTEN/NOTIFY.
// refreshTTL is the fallback interval for refreshing the token from source.
func NewSnapshotManager(source repositories.SnapshotProvider, connStr string, refreshTTL time.Duration) *SnapshotManager {
	return &SnapshotManager{
		source:     source,
		connStr:    connStr,
		refreshTTL: refreshTTL,
		stopCh:     make(chan struct{}),
	}
}

// Start initializes the SnapshotManager by fetching the initial token
// and starting the LISTEN/NOTIFY listener.
func (m *SnapshotManager) Start(ctx context.Context) error {
	// Fetch initial token
	token, err := m.fetchLatestToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch initial token: %w", err)
	}

	m.mu.Lock()
	m.currentToken = token
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	// Start listener for NOTIFY events
	if err := m.startListener(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	return nil
}

// Stop stops the SnapshotManager and cleans up resources.
func (m *SnapshotManager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	if m.listener != nil {
		return m.listener.Close()
	}
	return nil
}

// Current returns the current snapshot token.
// If the token is stale (older than refreshTTL), it refreshes from the database.
func (m *SnapshotManager) Current(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.currentToken
	needsRefresh := time.Since(m.lastRefresh) > m.refreshTTL
	m.mu.RUnlock()

	// If source is nil (testing mode), just return the current token
	if m.source == nil {
		return token, nil
	}

	if needsRefresh || token == "" {
		return m.refreshFromDB(ctx)
	}

	return token, nil
}

// refreshFromDB fetches the latest token from the source and updates the cache.
func (m *SnapshotManager) refreshFromDB(ctx context.Context) (string, error) {
	token, err := m.fetchLatestToken(ctx)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.currentToken = token
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	return token, nil
}

// fetchLatestToken fetches the current snapshot token from the source.
// Any committed mutation advances it, so tokens track data changes.
func (m *SnapshotManager) fetchLatestToken(ctx context.Context) (string, error) {
	token, err := m.source.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch latest token: %w", err)
	}
	return token, nil
}

// startListener starts the PostgreSQL LISTEN/NOTIFY listener.
func (m *SnapshotManager) startListener() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			// Log error but don't fail - we have TTL fallback
			fmt.Printf("SnapshotManager listener error: %v\n", err)
		}
	}

	m.listener = pq.NewListener(m.connStr, 10*time.Second, time.Minute, reportProblem)

	err := m.listener.Listen(snapshotChannel)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", snapshotChannel, err)
	}

	// Start goroutine to handle notifications
	go m.handleNotifications()

	return nil
}

// handleNotifications processes incoming NOTIFY events.
func (m *SnapshotManager) handleNotifications() {
	for {
		select {
		case <-m.stopCh:
			return
		case notification := <-m.listener.Notify:
			if notification == nil {
				// Connection lost, listener will reconnect automatically
				continue
			}

			// Update token from notification payload
			m.mu.Lock()
			m.currentToken = notification.Extra
			m.lastRefresh = time.Now()
			m.mu.Unlock()
		case <-time.After(90 * time.Second):
			// Periodic ping to keep connection alive
			go func() {
				if err := m.listener.Ping(); err != nil {
					fmt.Printf("SnapshotManager ping error: %v\n", err)
				}
			}()
		}
	}
}

// SetToken manually sets the current token.
// This is primarily used for testing.
func (m *SnapshotManager) SetToken(token string) {
	m.mu.Lock()
	m.currentToken = token
	m.lastRefresh = time.Now()
	m.mu.Unlock()
}
