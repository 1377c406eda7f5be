package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randomizedcoder/go-hls-qoe/internal/player"
)

// PlayerManager coordinates multiple playback instances.
// It handles starting players, tracking their state, and coordinating shutdown.
type PlayerManager struct {
	logger *slog.Logger

	// Players indexed by instance ID
	players map[int]*player.Player
	reasons map[string]int
	mu      sync.RWMutex

	// WaitGroup for all player goroutines
	wg sync.WaitGroup

	activeCount  atomic.Int64
	startedCount atomic.Int64
}

// NewPlayerManager creates a new PlayerManager.
func NewPlayerManager(logger *slog.Logger) *PlayerManager {
	return &PlayerManager{
		logger:  logger,
		players: make(map[int]*player.Player),
		reasons: make(map[string]int),
	}
}

// StartPlayer runs a player in its own goroutine and tracks its outcome.
func (m *PlayerManager) StartPlayer(ctx context.Context, instanceID int, p *player.Player) {
	m.mu.Lock()
	m.players[instanceID] = p
	m.mu.Unlock()

	m.startedCount.Add(1)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.activeCount.Add(1)
		defer m.activeCount.Add(-1)

		reason, err := p.Run(ctx)

		m.mu.Lock()
		m.reasons[reason]++
		m.mu.Unlock()

		if err != nil {
			m.logger.Debug("player_ended",
				"instance_id", instanceID,
				"reason", reason,
				"error", err,
			)
			return
		}
		m.logger.Debug("player_ended",
			"instance_id", instanceID,
			"reason", reason,
		)
	}()
}

// Wait blocks until every started player has finished.
func (m *PlayerManager) Wait() {
	m.wg.Wait()
}

// Shutdown waits for all players to stop, with a timeout.
// Players stop because the context passed to StartPlayer is cancelled.
func (m *PlayerManager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutdown_initiated", "active_players", m.ActiveCount())

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all_players_stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown_timeout")
		return ctx.Err()
	}
}

// ActiveCount returns the number of currently running players.
func (m *PlayerManager) ActiveCount() int {
	return int(m.activeCount.Load())
}

// StartedCount returns the total number of players started.
func (m *PlayerManager) StartedCount() int {
	return int(m.startedCount.Load())
}

// PlayerCount returns the number of registered players.
func (m *PlayerManager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// GetPlayer returns the player for a specific instance ID.
func (m *PlayerManager) GetPlayer(instanceID int) *player.Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[instanceID]
}

// EndReasons returns a copy of the end-reason tallies.
func (m *PlayerManager) EndReasons() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int, len(m.reasons))
	for k, v := range m.reasons {
		out[k] = v
	}
	return out
}
