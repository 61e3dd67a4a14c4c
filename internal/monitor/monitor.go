// Package monitor samples process health and pipeline throughput on a fixed
// interval and feeds the corresponding gauges. A degraded reading lowers a
// gauge and logs; it never interrupts acquisition.
package monitor

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/observability"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// LineCounter reports cumulative line totals; the monitor turns deltas into
// per-interval rates.
type LineCounter interface {
	LineCounts() (total, malformed uint64)
}

// Snapshot is one observation of process and pipeline health.
type Snapshot struct {
	At              time.Time
	CPUPercent      float64
	MemoryRSSBytes  uint64
	BufferFillRatio float64
	LinesPerSec     float64
	DecodeErrorRate float64
}

type Monitor struct {
	interval time.Duration
	buffer   ports.SampleBuffer
	counter  LineCounter
	obs      ports.Observability
	proc     *process.Process

	mu            sync.Mutex
	last          Snapshot
	prevTotal     uint64
	prevMalformed uint64
	prevAt        time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(interval time.Duration, buffer ports.SampleBuffer, counter LineCounter, obs ports.Observability) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	// Process lookup for our own pid cannot realistically fail; a nil proc
	// just disables the CPU/RSS readings.
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		obs.LogError("process_handle_unavailable", err)
		proc = nil
	}
	return &Monitor{
		interval: interval,
		buffer:   buffer,
		counter:  counter,
		obs:      obs,
		proc:     proc,
		stop:     make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// Last returns the most recent observation.
func (m *Monitor) Last() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.prime()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.observe()
		}
	}
}

func (m *Monitor) prime() {
	total, malformed := m.counter.LineCounts()
	m.mu.Lock()
	m.prevTotal, m.prevMalformed = total, malformed
	m.prevAt = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) observe() {
	now := time.Now()
	snap := Snapshot{At: now}

	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		} else {
			m.obs.LogError("cpu_reading_failed", err)
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			snap.MemoryRSSBytes = mem.RSS
		} else if err != nil {
			m.obs.LogError("memory_reading_failed", err)
		}
	}

	if capacity := m.buffer.Capacity(); capacity > 0 {
		snap.BufferFillRatio = float64(m.buffer.Len()) / float64(capacity)
	}

	total, malformed := m.counter.LineCounts()

	m.mu.Lock()
	elapsed := now.Sub(m.prevAt).Seconds()
	dTotal := total - m.prevTotal
	dMalformed := malformed - m.prevMalformed
	m.prevTotal, m.prevMalformed, m.prevAt = total, malformed, now
	m.mu.Unlock()

	if elapsed > 0 {
		snap.LinesPerSec = float64(dTotal) / elapsed
	}
	if dTotal > 0 {
		snap.DecodeErrorRate = float64(dMalformed) / float64(dTotal)
	}

	m.obs.SetGauge(observability.MetricProcessCPUPercent, snap.CPUPercent)
	m.obs.SetGauge(observability.MetricProcessMemBytes, float64(snap.MemoryRSSBytes))
	m.obs.SetGauge(observability.MetricBufferFillRatio, snap.BufferFillRatio)
	m.obs.SetGauge(observability.MetricDecodeErrorRate, snap.DecodeErrorRate)

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
}
