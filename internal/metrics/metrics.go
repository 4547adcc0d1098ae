package metrics

import (
	"sync"
)

// Metrics tracks orchestrator counters
type Metrics struct {
	mu sync.RWMutex

	campaignsStarted    int64
	campaignsCompleted  int64
	lifecycleActions    int64
	ticksCompleted      int64
	ticksFailed         int64
	lockContention      int64
	staleLocksReclaimed int64
	escalations         int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementCampaignsStarted increments the started campaigns counter
func (m *Metrics) IncrementCampaignsStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaignsStarted++
}

// IncrementCampaignsCompleted increments the completed campaigns counter
func (m *Metrics) IncrementCampaignsCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaignsCompleted++
}

// IncrementLifecycleActions counts pause, resume, stop and nudge calls
func (m *Metrics) IncrementLifecycleActions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifecycleActions++
}

// IncrementTicksCompleted increments the completed ticks counter
func (m *Metrics) IncrementTicksCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksCompleted++
}

// IncrementTicksFailed increments the failed ticks counter
func (m *Metrics) IncrementTicksFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksFailed++
}

// IncrementLockContention counts ticks rejected because the run lock was held
func (m *Metrics) IncrementLockContention() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockContention++
}

// IncrementStaleLocksReclaimed counts run locks taken over from a crashed holder
func (m *Metrics) IncrementStaleLocksReclaimed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleLocksReclaimed++
}

// IncrementEscalations increments the escalations counter
func (m *Metrics) IncrementEscalations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations++
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"campaigns_started":     m.campaignsStarted,
		"campaigns_completed":   m.campaignsCompleted,
		"lifecycle_actions":     m.lifecycleActions,
		"ticks_completed":       m.ticksCompleted,
		"ticks_failed":          m.ticksFailed,
		"lock_contention":       m.lockContention,
		"stale_locks_reclaimed": m.staleLocksReclaimed,
		"escalations":           m.escalations,
	}
}
