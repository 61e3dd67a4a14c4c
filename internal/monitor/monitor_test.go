package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/ring"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

type stubCounter struct {
	mu        sync.Mutex
	total     uint64
	malformed uint64
}

func (s *stubCounter) set(total, malformed uint64) {
	s.mu.Lock()
	s.total, s.malformed = total, malformed
	s.mu.Unlock()
}

func (s *stubCounter) LineCounts() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.malformed
}

type gaugeObs struct {
	mu     sync.Mutex
	gauges map[string]float64
}

func newGaugeObs() *gaugeObs { return &gaugeObs{gauges: map[string]float64{}} }

func (g *gaugeObs) LogInfo(string, ...ports.Field)           {}
func (g *gaugeObs) LogError(string, error, ...ports.Field)   {}
func (g *gaugeObs) LogCritical(string, error, ...ports.Field) {}
func (g *gaugeObs) IncCounter(string, float64)               {}
func (g *gaugeObs) ObserveLatency(string, float64)           {}

func (g *gaugeObs) SetGauge(name string, v float64) {
	g.mu.Lock()
	g.gauges[name] = v
	g.mu.Unlock()
}

func (g *gaugeObs) get(name string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gauges[name]
}

func TestMonitorObservesRatesAndFill(t *testing.T) {
	buf := ring.New(100)
	for i := 0; i < 25; i++ {
		buf.Push(domain.Sample{Seq: uint64(i + 1), Timestamp: time.Now()})
	}
	counter := &stubCounter{}
	obs := newGaugeObs()

	m := New(50*time.Millisecond, buf, counter, obs)
	m.Start()
	defer m.Stop()

	counter.set(200, 20)

	// Capture the tick that saw the counter delta; later ticks see zero
	// deltas again.
	var snap Snapshot
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap = m.Last()
		if snap.LinesPerSec > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.At.IsZero() || snap.LinesPerSec == 0 {
		t.Fatalf("monitor never observed the counter delta: %+v", snap)
	}
	if snap.BufferFillRatio != 0.25 {
		t.Fatalf("fill ratio = %f, want 0.25", snap.BufferFillRatio)
	}
	if snap.LinesPerSec <= 0 {
		t.Fatalf("lines/sec not derived from counter delta")
	}
	if snap.DecodeErrorRate != 0.1 {
		t.Fatalf("error rate = %f, want 0.1", snap.DecodeErrorRate)
	}

	// The fill gauge is stable across ticks; rate gauges decay back to
	// zero on quiet intervals, so only the snapshot asserts on them.
	if got := obs.get("ecg_buffer_fill_ratio"); got != 0.25 {
		t.Fatalf("fill gauge = %f, want 0.25", got)
	}
}

func TestMonitorQuietIntervalHasZeroRates(t *testing.T) {
	m := New(30*time.Millisecond, ring.New(10), &stubCounter{}, newGaugeObs())
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !m.Last().At.IsZero() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := m.Last()
	if snap.At.IsZero() {
		t.Fatalf("monitor never observed")
	}
	if snap.LinesPerSec != 0 || snap.DecodeErrorRate != 0 {
		t.Fatalf("idle pipeline should report zero rates: %+v", snap)
	}
}

func TestMonitorStopTerminatesLoop(t *testing.T) {
	m := New(10*time.Millisecond, ring.New(10), &stubCounter{}, newGaugeObs())
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return")
	}
}
