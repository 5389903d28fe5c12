package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/kkismd/gridworker/pkg/logger"
)

// ClientManager tracks connected clients by worker ID and rate-limits
// connection attempts per IP.
type ClientManager struct {
	clients    map[string]*Client
	rateLimits map[string]*rateLimitInfo
	mu         sync.RWMutex
}

type rateLimitInfo struct {
	requests  int
	lastReset time.Time
}

// Connection attempts allowed per IP per minute.
const maxConnectionsPerMinute = 30

// NewClientManager creates an empty registry.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:    make(map[string]*Client),
		rateLimits: map[string]*rateLimitInfo{},
	}
}

// AddClient registers a client under its worker ID.
func (cm *ClientManager) AddClient(workerID string, client *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[workerID] = client
	logger.Debug(logger.AreaWebSocket, "client registered for worker %s", workerID)
}

// RemoveClient drops a client from the registry.
func (cm *ClientManager) RemoveClient(workerID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[workerID]; exists {
		delete(cm.clients, workerID)
		logger.Debug(logger.AreaWebSocket, "client removed for worker %s", workerID)
	}
}

// GetClientCount reports the number of connected clients.
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// HasClient reports whether a worker still has a connection.
func (cm *ClientManager) HasClient(workerID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.clients[workerID]
	return exists
}

// CheckRateLimit counts a connection attempt against an IP's per-minute
// budget.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	limit, exists := cm.rateLimits[ipAddress]
	if !exists {
		limit = &rateLimitInfo{lastReset: now}
		cm.rateLimits[ipAddress] = limit
	}

	if now.Sub(limit.lastReset) > time.Minute {
		limit.requests = 0
		limit.lastReset = now
	}
	limit.requests++

	if limit.requests > maxConnectionsPerMinute {
		logger.Warn(logger.AreaWebSocket, "rate limit exceeded for %s: %d attempts in the last minute", ipAddress, limit.requests)
		return fmt.Errorf("rate limit exceeded for %s", ipAddress)
	}
	return nil
}

// CloseAll disconnects every client, for shutdown.
func (cm *ClientManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for id, client := range cm.clients {
		client.close()
		delete(cm.clients, id)
	}
}
