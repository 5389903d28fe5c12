// Package session manages worker lifecycles: each connected client gets a
// worker with its own engine and address space, all workers on the board
// share one grid, and a single scheduler goroutine multiplexes execution
// across them with a fixed statement budget per tick.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kkismd/gridworker/pkg/configuration"
	"github.com/kkismd/gridworker/pkg/gridbasic"
	"github.com/kkismd/gridworker/pkg/logger"
	"github.com/kkismd/gridworker/pkg/shared"
)

// ErrBoardFull is returned when the worker limit is reached.
var ErrBoardFull = errors.New("maximum number of workers reached")

// Manager owns the shared grid, the worker registry and the scheduler.
type Manager struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	grid    *gridbasic.Grid
	store   *Store

	maxWorkers   int
	spaceSize    int
	inputLimit   int
	sendBuffer   int
	stepsPerTick int
	tickInterval time.Duration

	nextSlot int
	stop     chan struct{}
	done     sync.WaitGroup
}

// NewManager builds a manager from the [System], [Runtime] and [Grid]
// config sections. The store may be nil for hosts without persistence.
func NewManager(store *Store) *Manager {
	width := configuration.GetInt("Grid", "width", gridbasic.DefaultGridWidth)
	height := configuration.GetInt("Grid", "height", gridbasic.DefaultGridHeight)

	return &Manager{
		workers:      make(map[string]*Worker),
		grid:         gridbasic.NewGrid(width, height),
		store:        store,
		maxWorkers:   configuration.GetInt("System", "max_workers_per_board", 32),
		spaceSize:    configuration.GetInt("Grid", "space_size", gridbasic.DefaultSpaceSize),
		inputLimit:   configuration.GetInt("Runtime", "input_queue_limit", 256),
		sendBuffer:   configuration.GetInt("Network", "max_channel_buffer", 1024),
		stepsPerTick: configuration.GetInt("Runtime", "steps_per_tick", 250),
		tickInterval: configuration.GetDuration("Runtime", "tick_interval", 10*time.Millisecond),
		stop:         make(chan struct{}),
	}
}

// Grid exposes the board's shared grid.
func (m *Manager) Grid() *gridbasic.Grid { return m.grid }

// Store exposes the backing store, or nil when persistence is disabled.
func (m *Manager) Store() *Store { return m.store }

// Start launches the scheduler and the idle-session reaper.
func (m *Manager) Start() {
	m.done.Add(2)
	go m.schedulerLoop()
	go m.cleanupLoop()
	logger.Info(logger.AreaSession, "manager started, tick %s, budget %d", m.tickInterval, m.stepsPerTick)
}

// Shutdown stops the scheduler and waits for it to drain.
func (m *Manager) Shutdown() {
	close(m.stop)
	m.done.Wait()
}

// CreateWorker registers a new worker on the board and assigns it the next
// free grid position.
func (m *Manager) CreateWorker(username string) (*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.workers) >= m.maxWorkers {
		return nil, ErrBoardFull
	}

	id := uuid.New().String()
	x := int16(m.nextSlot % m.grid.Width())
	y := int16((m.nextSlot / m.grid.Width()) % m.grid.Height())
	m.nextSlot++

	w := newWorker(id, username, m.grid, x, y, m.spaceSize, m.inputLimit, m.sendBuffer)
	m.workers[id] = w
	logger.Info(logger.AreaSession, "worker %s created for %s at (%d,%d)", id, username, x, y)
	return w, nil
}

// GetWorker looks up a worker by session ID.
func (m *Manager) GetWorker(id string) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	return w, ok
}

// RemoveWorker drops a worker from the board. Its grid cells are left as
// they are; the grid belongs to the board, not the worker.
func (m *Manager) RemoveWorker(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[id]; ok {
		delete(m.workers, id)
		logger.Info(logger.AreaSession, "worker %s removed", id)
	}
}

// WorkerCount reports the number of registered workers.
func (m *Manager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// GridRegion copies a rectangular region of the shared grid into a message.
// Zero width or height selects the whole grid. Coordinates wrap the same way
// script accesses do.
func (m *Manager) GridRegion(x, y, w, h int) shared.Message {
	if w <= 0 || h <= 0 {
		x, y = 0, 0
		w, h = m.grid.Width(), m.grid.Height()
	}
	cells := make([]int16, 0, w*h)
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			cells = append(cells, m.grid.Read(x+dx, y+dy))
		}
	}
	return shared.Message{
		Type:       shared.MessageTypeGrid,
		GridX:      x,
		GridY:      y,
		GridWidth:  w,
		GridHeight: h,
		GridCells:  cells,
	}
}

// schedulerLoop gives every worker one budget-bounded slice per tick. The
// map iteration order varies per tick, but each pending worker gets exactly
// one slice per round, which is all the fairness the board needs.
func (m *Manager) schedulerLoop() {
	defer m.done.Done()
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for _, w := range m.snapshotWorkers() {
				w.tick(m.stepsPerTick)
			}
		}
	}
}

// snapshotWorkers copies the registry so ticking happens outside the lock.
func (m *Manager) snapshotWorkers() []*Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		list = append(list, w)
	}
	return list
}

// cleanupLoop reaps workers whose clients have gone quiet.
func (m *Manager) cleanupLoop() {
	defer m.done.Done()
	interval := configuration.GetDuration("System", "session_cleanup_interval", 5*time.Minute)
	maxIdle := configuration.GetDuration("System", "max_inactive_time", 30*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for _, w := range m.snapshotWorkers() {
				if w.IdleFor() > maxIdle {
					logger.Info(logger.AreaSession, "worker %s idle for %s, reaping", w.ID, w.IdleFor().Round(time.Second))
					m.RemoveWorker(w.ID)
				}
			}
		}
	}
}
