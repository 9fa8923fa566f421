package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// FanoutStats is the JSON snapshot served by the debug server.
type FanoutStats struct {
	MessagesPersisted uint64 `json:"messages_persisted"`
	EventsReceived    uint64 `json:"events_received"`
	FramesDelivered   uint64 `json:"frames_delivered"`
	ConnectionsPruned uint64 `json:"connections_pruned"`
	ListenerRestarts  uint64 `json:"listener_restarts"`
	CacheHits         uint64 `json:"cache_hits"`
	CacheMisses       uint64 `json:"cache_misses"`
	CacheErrors       uint64 `json:"cache_errors"`
	RateLimited       uint64 `json:"rate_limited"`
	ActiveConnections int64  `json:"active_connections"`
	ActiveListeners   int64  `json:"active_listeners"`

	// --- SYSTEM METRICS ---
	AllocMemMb   uint64  `json:"alloc_mem_mb"`
	NumGC        uint32  `json:"num_gc"`
	Goroutines   int     `json:"goroutines"`
	ProcessCPU   float64 `json:"process_cpu"`
	ProcessMemMb uint64  `json:"process_mem_mb"`
	Healthy      bool    `json:"healthy"`
	UpdatedAt    string  `json:"updated_at"`
}

// MonitoringManager keeps fan-out counters; all increments are lock-free.
type MonitoringManager struct {
	log *slog.Logger
	mu  sync.RWMutex

	messagesPersisted uint64
	eventsReceived    uint64
	framesDelivered   uint64
	connectionsPruned uint64
	listenerRestarts  uint64
	cacheHits         uint64
	cacheMisses       uint64
	cacheErrors       uint64
	rateLimited       uint64
	activeConnections int64
	activeListeners   int64

	processCPU   float64
	processMemMb uint64
	healthy      bool
	lastCheck    time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log, healthy: true, lastCheck: time.Now()}
}

func (mm *MonitoringManager) IncrMessagesPersisted() { atomic.AddUint64(&mm.messagesPersisted, 1) }
func (mm *MonitoringManager) IncrEventsReceived()    { atomic.AddUint64(&mm.eventsReceived, 1) }
func (mm *MonitoringManager) IncrListenerRestarts()  { atomic.AddUint64(&mm.listenerRestarts, 1) }
func (mm *MonitoringManager) IncrCacheHits()         { atomic.AddUint64(&mm.cacheHits, 1) }
func (mm *MonitoringManager) IncrCacheMisses()       { atomic.AddUint64(&mm.cacheMisses, 1) }
func (mm *MonitoringManager) IncrCacheErrors()       { atomic.AddUint64(&mm.cacheErrors, 1) }
func (mm *MonitoringManager) IncrRateLimited()       { atomic.AddUint64(&mm.rateLimited, 1) }

func (mm *MonitoringManager) AddFramesDelivered(n int) {
	atomic.AddUint64(&mm.framesDelivered, uint64(n))
}

func (mm *MonitoringManager) AddConnectionsPruned(n int) {
	atomic.AddUint64(&mm.connectionsPruned, uint64(n))
}

func (mm *MonitoringManager) ConnectionOpened() { atomic.AddInt64(&mm.activeConnections, 1) }
func (mm *MonitoringManager) ConnectionClosed() { atomic.AddInt64(&mm.activeConnections, -1) }
func (mm *MonitoringManager) ListenerStarted()  { atomic.AddInt64(&mm.activeListeners, 1) }
func (mm *MonitoringManager) ListenerStopped()  { atomic.AddInt64(&mm.activeListeners, -1) }

// UpdateProcess records the latest process sample and dependency health.
func (mm *MonitoringManager) UpdateProcess(cpu float64, memMb uint64, healthy bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.processCPU = cpu
	mm.processMemMb = memMb
	mm.healthy = healthy
	mm.lastCheck = time.Now()
}

func (mm *MonitoringManager) Healthy() bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.healthy
}

func (mm *MonitoringManager) GetLatest() FanoutStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return FanoutStats{
		MessagesPersisted: atomic.LoadUint64(&mm.messagesPersisted),
		EventsReceived:    atomic.LoadUint64(&mm.eventsReceived),
		FramesDelivered:   atomic.LoadUint64(&mm.framesDelivered),
		ConnectionsPruned: atomic.LoadUint64(&mm.connectionsPruned),
		ListenerRestarts:  atomic.LoadUint64(&mm.listenerRestarts),
		CacheHits:         atomic.LoadUint64(&mm.cacheHits),
		CacheMisses:       atomic.LoadUint64(&mm.cacheMisses),
		CacheErrors:       atomic.LoadUint64(&mm.cacheErrors),
		RateLimited:       atomic.LoadUint64(&mm.rateLimited),
		ActiveConnections: atomic.LoadInt64(&mm.activeConnections),
		ActiveListeners:   atomic.LoadInt64(&mm.activeListeners),
		AllocMemMb:        m.Alloc / 1024 / 1024,
		NumGC:             m.NumGC,
		Goroutines:        runtime.NumGoroutine(),
		ProcessCPU:        mm.processCPU,
		ProcessMemMb:      mm.processMemMb,
		Healthy:           mm.healthy,
		UpdatedAt:         mm.lastCheck.UTC().Format(time.RFC3339),
	}
}

// AsMap feeds the debug server stats provider.
func (mm *MonitoringManager) AsMap() map[string]any {
	s := mm.GetLatest()
	return map[string]any{
		"messages_persisted": s.MessagesPersisted,
		"events_received":    s.EventsReceived,
		"frames_delivered":   s.FramesDelivered,
		"connections_pruned": s.ConnectionsPruned,
		"listener_restarts":  s.ListenerRestarts,
		"cache_hits":         s.CacheHits,
		"cache_misses":       s.CacheMisses,
		"cache_errors":       s.CacheErrors,
		"rate_limited":       s.RateLimited,
		"active_connections": s.ActiveConnections,
		"active_listeners":   s.ActiveListeners,
		"alloc_mem_mb":       s.AllocMemMb,
		"goroutines":         s.Goroutines,
		"healthy":            s.Healthy,
	}
}
