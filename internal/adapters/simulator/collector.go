// Package simulator emits a synthetic ECG-like waveform as bare-numeric
// lines, for demos and for running the pipeline without hardware.
package simulator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Config shapes the generated waveform.
type Config struct {
	SampleRateHz float64
	HeartRateBPM float64
	Amplitude    float64
}

func (c *Config) applyDefaults() {
	if c.SampleRateHz <= 0 {
		c.SampleRateHz = 250
	}
	if c.HeartRateBPM <= 0 {
		c.HeartRateBPM = 72
	}
	if c.Amplitude <= 0 {
		c.Amplitude = 512
	}
}

// Collector generates lines at the configured sample rate until stopped.
type Collector struct {
	cfg     Config
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

func NewCollector(cfg Config) *Collector {
	cfg.applyDefaults()
	return &Collector{cfg: cfg}
}

func (c *Collector) Start(out chan<- string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("simulator already started")
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.started = true

	go c.run(out)
	return nil
}

func (c *Collector) run(out chan<- string) {
	defer close(out)
	defer close(c.doneCh)

	interval := time.Duration(float64(time.Second) / c.cfg.SampleRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	beatPeriod := 60.0 / c.cfg.HeartRateBPM
	var t float64

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			select {
			case out <- fmt.Sprintf("%.1f", c.value(t, beatPeriod)):
			case <-c.stopCh:
				return
			}
			t += 1.0 / c.cfg.SampleRateHz
		}
	}
}

// value models a crude PQRST-ish shape: a narrow R spike riding on a low
// sine baseline.
func (c *Collector) value(t, beatPeriod float64) float64 {
	phase := math.Mod(t, beatPeriod) / beatPeriod
	baseline := 0.05 * c.cfg.Amplitude * math.Sin(2*math.Pi*phase)

	// R wave: sharp gaussian at 30% of the beat.
	d := phase - 0.3
	spike := c.cfg.Amplitude * math.Exp(-d*d/(2*0.0004))
	return baseline + spike
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	close(c.stopCh)
	<-c.doneCh
	return nil
}

var _ ports.Collector = (*Collector)(nil)
