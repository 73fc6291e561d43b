// This file implements the HubManager: the process-wide registry of
// per-user Hub actors (spec §5 "exactly one Hub per owning user") plus the
// idle-hibernation sweep that tears one down once it has been quiet past
// hibernate_after with no open sockets.
//
// Grounded on the teacher's AgentHub lifecycle management in
// agent_hub.go (one loop per logical unit, started/stopped under a
// manager-level lock) and on robfig/cron for the periodic sweep, the same
// scheduling library the rest of the pack reaches for recurring
// maintenance work.
package hub

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/relaybridge/hub/internal/db"
	"github.com/relaybridge/hub/internal/logger"
)

// Manager owns every active per-user Hub and the background sweep that
// hibernates idle ones.
type Manager struct {
	mu      sync.Mutex
	hubs    map[string]*Hub
	cancels map[string]context.CancelFunc

	storeDir string
	config   Config
	tokenDB  *db.TokenDB

	sweep *cron.Cron
}

func NewManager(storeDir string, cfg Config, tokenDB *db.TokenDB) *Manager {
	return &Manager{
		hubs:     make(map[string]*Hub),
		cancels:  make(map[string]context.CancelFunc),
		storeDir: storeDir,
		config:   cfg,
		tokenDB:  tokenDB,
		sweep:    cron.New(),
	}
}

// StartSweep schedules the idle-hibernation check. Runs every ten seconds
// since hibernate_after is itself measured in seconds for this deployment
// (spec §6 hibernate_after_ms default).
func (m *Manager) StartSweep() error {
	_, err := m.sweep.AddFunc("@every 10s", m.sweepOnce)
	if err != nil {
		return fmt.Errorf("scheduling idle sweep: %w", err)
	}
	m.sweep.Start()
	return nil
}

func (m *Manager) StopSweep() {
	m.sweep.Stop()
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	idle := make([]string, 0)
	for userID, h := range m.hubs {
		if h.Idle() {
			idle = append(idle, userID)
		}
	}
	m.mu.Unlock()

	for _, userID := range idle {
		m.Hibernate(userID)
	}
}

// GetOrCreate returns the live Hub for a user, starting it (and reloading
// its Registry from durable storage) if this is the first connection since
// process start or since the last hibernation (spec §4.2 cold start).
func (m *Manager) GetOrCreate(userID string) (*Hub, error) {
	m.mu.Lock()
	if h, ok := m.hubs[userID]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	store, err := OpenStore(m.storeDir, userID)
	if err != nil {
		return nil, fmt.Errorf("opening hub store for %s: %w", userID, err)
	}
	h := NewHub(userID, store, m.tokenDB, m.config)
	if err := h.Resume(); err != nil {
		store.Close()
		return nil, fmt.Errorf("resuming hub for %s: %w", userID, err)
	}

	m.mu.Lock()
	if existing, ok := m.hubs[userID]; ok {
		// Lost a race with a concurrent GetOrCreate; keep the winner.
		m.mu.Unlock()
		store.Close()
		return existing, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.hubs[userID] = h
	m.cancels[userID] = cancel
	m.mu.Unlock()

	go h.Run(ctx)
	logger.Hub(userID).Info().Msg("hub started")
	return h, nil
}

// Hibernate stops a user's Hub loop and drops it from the active set. The
// Registry's durable store remains on disk; the next GetOrCreate reloads it
// (spec §4.2, §9 hibernation safety).
func (m *Manager) Hibernate(userID string) {
	m.mu.Lock()
	h, ok := m.hubs[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	cancel := m.cancels[userID]
	delete(m.hubs, userID)
	delete(m.cancels, userID)
	m.mu.Unlock()

	cancel()
	h.Stop()
	if err := h.store.Close(); err != nil {
		logger.Hub(userID).Warn().Err(err).Msg("failed to close hub store cleanly")
	}
	logger.Hub(userID).Info().Msg("hub hibernated")
}

// StorePath returns the on-disk location of a user's durable store, used
// only for diagnostics and tests.
func (m *Manager) StorePath(userID string) string {
	return filepath.Join(m.storeDir, userID+".db")
}
