// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Transfer metrics (only for downloads)
	TotalBytes int64
	MinBytes   int64
	MaxBytes   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Transfer stats (nil if not applicable)
	TotalBytes *int64   `json:"total_bytes,omitempty"`
	AvgBytes   *float64 `json:"avg_bytes,omitempty"`
	MinBytes   *int64   `json:"min_bytes,omitempty"`
	MaxBytes   *int64   `json:"max_bytes,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Validate      *OperationSnapshot `json:"validate,omitempty"`
	Locate        *OperationSnapshot `json:"locate,omitempty"`
	Download      *OperationSnapshot `json:"download,omitempty"`
	Mux           *OperationSnapshot `json:"mux,omitempty"`
	Thumbnail     *OperationSnapshot `json:"thumbnail,omitempty"`
	Process       *OperationSnapshot `json:"process,omitempty"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
}

// Operation names for the collector.
const (
	OpValidate  = "validate"
	OpLocate    = "locate"
	OpDownload  = "download"
	OpMux       = "mux"
	OpThumbnail = "thumbnail"
	OpProcess   = "process"
	OpDBQuery   = "db_query"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe to call on a nil Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	exporter  *exporter
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		exporter:  newExporter(),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:  time.Duration(math.MaxInt64),
			MinBytes: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) addTiming(duration time.Duration, err error) {
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Failures++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordResult(op, duration, nil)
}

// RecordResult records timing for an operation and counts it as failed
// when err is non-nil.
func (c *Collector) RecordResult(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.exporter.observe(op, duration, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).addTiming(duration, err)
}

// RecordTransfer records timing and size of a completed transfer.
func (c *Collector) RecordTransfer(op string, duration time.Duration, bytes int64) {
	if c == nil {
		return
	}
	c.exporter.observe(op, duration, nil)
	c.exporter.downloadBytes.Add(float64(bytes))

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.addTiming(duration, nil)

	m.TotalBytes += bytes
	if bytes < m.MinBytes {
		m.MinBytes = bytes
	}
	if bytes > m.MaxBytes {
		m.MaxBytes = bytes
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeBytes bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeBytes && m.TotalBytes > 0 {
		total := m.TotalBytes
		avg := float64(m.TotalBytes) / float64(m.Count)
		minBytes := m.MinBytes
		maxBytes := m.MaxBytes

		// Reset sentinel value for display
		if minBytes == math.MaxInt64 {
			minBytes = 0
		}

		snap.TotalBytes = &total
		snap.AvgBytes = &avg
		snap.MinBytes = &minBytes
		snap.MaxBytes = &maxBytes
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Validate:      snapshotOp(c.ops[OpValidate], false),
		Locate:        snapshotOp(c.ops[OpLocate], false),
		Download:      snapshotOp(c.ops[OpDownload], true),
		Mux:           snapshotOp(c.ops[OpMux], false),
		Thumbnail:     snapshotOp(c.ops[OpThumbnail], false),
		Process:       snapshotOp(c.ops[OpProcess], false),
		DBQuery:       snapshotOp(c.ops[OpDBQuery], false),
	}
}
