package reconcile

import (
	"math"
	"sync"
	"time"
)

// HistoryEntry is one finished pass in the rolling history.
type HistoryEntry struct {
	SessionID  string    `json:"id" yaml:"id"`
	DurationMs int64     `json:"duration" yaml:"duration"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Status     Status    `json:"status" yaml:"status"`
	Result     Result    `json:"result" yaml:"result"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalSyncs        int       `json:"totalSyncs" yaml:"totalSyncs"`
	SuccessfulSyncs   int       `json:"successfulSyncs" yaml:"successfulSyncs"`
	FailedSyncs       int       `json:"failedSyncs" yaml:"failedSyncs"`
	AverageSyncTime   int64     `json:"averageSyncTime" yaml:"averageSyncTime"`
	LastSyncDuration  int64     `json:"lastSyncDuration" yaml:"lastSyncDuration"`
	ConflictsResolved int       `json:"conflictsResolved" yaml:"conflictsResolved"`
	ConflictsManual   int       `json:"conflictsManual" yaml:"conflictsManual"`
	PendingConflicts  int       `json:"pendingConflicts" yaml:"pendingConflicts"`
	DirectoryRecords  int       `json:"directoryCacheSize" yaml:"directoryCacheSize"`
	MirrorRecords     int       `json:"mirrorCacheSize" yaml:"mirrorCacheSize"`
	CacheStale        bool      `json:"cacheStale" yaml:"cacheStale"`
	LastSyncTime      time.Time `json:"lastSyncTime,omitempty" yaml:"lastSyncTime,omitempty"`
}

// Metrics holds pass counters and the bounded duration history.
type Metrics struct {
	mu       sync.RWMutex
	limit    int
	total    int
	success  int
	failed   int
	resolved int
	manual   int
	average  int64
	last     int64
	history  []HistoryEntry
}

// NewMetrics creates metrics retaining at most limit history entries.
func NewMetrics(limit int) *Metrics {
	if limit <= 0 {
		limit = 100
	}
	return &Metrics{limit: limit}
}

// RecordPass folds a finished pass into the counters.
func (m *Metrics) RecordPass(entry HistoryEntry, succeeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if succeeded {
		m.success++
	} else {
		m.failed++
	}
	m.last = entry.DurationMs

	m.history = append(m.history, entry)
	if over := len(m.history) - m.limit; over > 0 {
		m.history = append([]HistoryEntry(nil), m.history[over:]...)
	}

	var sum int64
	for _, h := range m.history {
		sum += h.DurationMs
	}
	m.average = int64(math.Round(float64(sum) / float64(len(m.history))))
}

// AddResolved counts automatically resolved conflicts.
func (m *Metrics) AddResolved(n int) {
	m.mu.Lock()
	m.resolved += n
	m.mu.Unlock()
}

// AddManual counts a manually resolved conflict.
func (m *Metrics) AddManual() {
	m.mu.Lock()
	m.manual++
	m.mu.Unlock()
}

// AverageSyncTime returns the mean duration of the retained history in milliseconds.
func (m *Metrics) AverageSyncTime() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.average
}

// Snapshot returns a copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		TotalSyncs:        m.total,
		SuccessfulSyncs:   m.success,
		FailedSyncs:       m.failed,
		AverageSyncTime:   m.average,
		LastSyncDuration:  m.last,
		ConflictsResolved: m.resolved,
		ConflictsManual:   m.manual,
	}
}

// History returns the last limit entries, newest last. limit <= 0 returns everything.
func (m *Metrics) History(limit int) []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && len(m.history) > limit {
		start = len(m.history) - limit
	}
	out := make([]HistoryEntry, len(m.history)-start)
	copy(out, m.history[start:])
	return out
}
