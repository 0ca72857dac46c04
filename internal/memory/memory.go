// Package memory sizes processing batches from observed heap usage.
package memory

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Defaults used when Config fields are zero.
const (
	DefaultSoftLimit    uint64 = 512 << 20
	DefaultHardLimit    uint64 = 1 << 30
	DefaultMaxBatch            = 64
	DefaultInitialBatch        = 8
)

// Sampler reports current heap usage in bytes.
type Sampler func() uint64

// HeapSampler reads the live heap size from the runtime.
func HeapSampler() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Config holds memory thresholds and batch bounds.
type Config struct {
	SoftLimit    uint64
	HardLimit    uint64
	MinBatch     int
	MaxBatch     int
	InitialBatch int
	Sampler      Sampler
	Logger       *slog.Logger
}

// Pressure classifies heap usage against the thresholds.
type Pressure string

// Pressure levels.
const (
	PressureNone Pressure = "none"
	PressureSoft Pressure = "soft"
	PressureHard Pressure = "hard"
)

// BatchingStrategy is the decision for the next batch.
type BatchingStrategy struct {
	Size      int
	Pause     bool
	Pressure  Pressure
	HeapBytes uint64
}

// Stats summarizes manager activity.
type Stats struct {
	Samples     int64  `json:"samples"`
	Pauses      int64  `json:"pauses"`
	Reliefs     int64  `json:"reliefs"`
	PeakBytes   uint64 `json:"peak_bytes"`
	LastBytes   uint64 `json:"last_bytes"`
	CurrentSize int    `json:"current_batch"`
}

// Manager computes adaptive batch sizes. Heap counters are shared by every
// Batcher created from it.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	batch  *Batcher

	samples atomic.Int64
	pauses  atomic.Int64
	reliefs atomic.Int64
	peak    atomic.Uint64
	last    atomic.Uint64
}

// New creates a Manager. Zero fields take defaults; MinBatch is at least 1
// and InitialBatch is clamped into [MinBatch, MaxBatch].
func New(cfg Config) *Manager {
	if cfg.SoftLimit == 0 {
		cfg.SoftLimit = DefaultSoftLimit
	}
	if cfg.HardLimit == 0 {
		cfg.HardLimit = DefaultHardLimit
	}
	if cfg.HardLimit <= cfg.SoftLimit {
		cfg.HardLimit = cfg.SoftLimit + 1
	}
	if cfg.MinBatch < 1 {
		cfg.MinBatch = 1
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.MaxBatch < cfg.MinBatch {
		cfg.MaxBatch = cfg.MinBatch
	}
	if cfg.InitialBatch <= 0 {
		cfg.InitialBatch = DefaultInitialBatch
	}
	cfg.InitialBatch = clamp(cfg.InitialBatch, cfg.MinBatch, cfg.MaxBatch)
	if cfg.Sampler == nil {
		cfg.Sampler = HeapSampler
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{cfg: cfg, logger: logger}
	m.batch = m.NewBatcher()
	return m
}

// Batcher holds the batch size of one sequence of batches. Concurrent runs
// each use their own Batcher so they do not reset each other's growth.
type Batcher struct {
	m *Manager

	mu      sync.Mutex
	size    int
	started bool
	pauses  int64
}

// NewBatcher returns a Batcher starting at InitialBatch.
func (m *Manager) NewBatcher() *Batcher {
	return &Batcher{m: m, size: m.cfg.InitialBatch}
}

// Sample reads heap usage and updates peak tracking.
func (m *Manager) Sample() uint64 {
	usage := m.cfg.Sampler()
	m.samples.Add(1)
	m.last.Store(usage)
	for {
		peak := m.peak.Load()
		if usage <= peak || m.peak.CompareAndSwap(peak, usage) {
			break
		}
	}
	return usage
}

// NextBatch returns the next batch of the Manager's own sequence.
func (m *Manager) NextBatch() BatchingStrategy {
	return m.batch.NextBatch()
}

// NextBatch samples heap usage and returns the size of the next batch.
// Below the soft limit the size doubles toward MaxBatch. Between the
// limits it shrinks linearly with the remaining headroom. At or above the
// hard limit it is MinBatch and Pause is set.
func (b *Batcher) NextBatch() BatchingStrategy {
	m := b.m
	usage := m.Sample()

	b.mu.Lock()
	defer b.mu.Unlock()

	s := BatchingStrategy{HeapBytes: usage}
	switch {
	case usage >= m.cfg.HardLimit:
		b.size = m.cfg.MinBatch
		s.Pause = true
		s.Pressure = PressureHard
		b.pauses++
		m.pauses.Add(1)
	case usage >= m.cfg.SoftLimit:
		headroom := m.cfg.HardLimit - usage
		window := m.cfg.HardLimit - m.cfg.SoftLimit
		scaled := int(uint64(m.cfg.MaxBatch) * headroom / window)
		b.size = clamp(scaled, m.cfg.MinBatch, m.cfg.MaxBatch)
		s.Pressure = PressureSoft
	default:
		if b.started {
			b.size = clamp(b.size*2, m.cfg.MinBatch, m.cfg.MaxBatch)
		}
		s.Pressure = PressureNone
	}
	s.Size = b.size
	b.started = true

	if s.Pressure != PressureNone {
		m.logger.Debug("memory pressure",
			"pressure", s.Pressure,
			"heap_bytes", usage,
			"batch_size", s.Size)
	}
	return s
}

// Pauses returns how many batches of this sequence hit the hard limit.
func (b *Batcher) Pauses() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pauses
}

// Relieve forces a garbage collection and returns freed memory to the OS.
// It returns heap usage after collection.
func (m *Manager) Relieve() uint64 {
	debug.FreeOSMemory()
	m.reliefs.Add(1)
	usage := m.Sample()
	m.logger.Debug("memory relieved", "heap_bytes", usage)
	return usage
}

// Reset restores the initial batch size of the Manager's own sequence.
func (m *Manager) Reset() {
	b := m.batch
	b.mu.Lock()
	b.size = m.cfg.InitialBatch
	b.started = false
	b.pauses = 0
	b.mu.Unlock()
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	m.batch.mu.Lock()
	size := m.batch.size
	m.batch.mu.Unlock()
	return Stats{
		Samples:     m.samples.Load(),
		Pauses:      m.pauses.Load(),
		Reliefs:     m.reliefs.Load(),
		PeakBytes:   m.peak.Load(),
		LastBytes:   m.last.Load(),
		CurrentSize: size,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
