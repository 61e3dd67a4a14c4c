// Package pipeline runs the acquisition lane: raw lines from a collector are
// decoded into samples and pushed into the circular buffer. Malformed lines
// and device status messages are counted and dropped so one bad frame never
// stalls ingestion.
package pipeline

import (
	"errors"
	"sync"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/observability"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/decoder"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// lineChanBuf absorbs short bursts from the collector while the consumer
// catches up.
const lineChanBuf = 256

type Pipeline struct {
	collector ports.Collector
	dec       *decoder.Decoder
	buffer    ports.SampleBuffer
	recorder  ports.Recorder // optional
	obs       ports.Observability

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

func New(collector ports.Collector, buffer ports.SampleBuffer, recorder ports.Recorder, obs ports.Observability) *Pipeline {
	return &Pipeline{
		collector: collector,
		dec:       decoder.New(),
		buffer:    buffer,
		recorder:  recorder,
		obs:       obs,
		done:      make(chan struct{}),
	}
}

// Start launches the collector and the consume loop. It returns once the
// collector has been started; decoding continues in the background.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pipeline: already started")
	}
	p.started = true
	p.mu.Unlock()

	lines := make(chan string, lineChanBuf)
	if err := p.collector.Start(lines); err != nil {
		close(p.done)
		return err
	}

	go p.consume(lines)
	return nil
}

// consume drains the line channel until the collector closes it, which marks
// the end of the stream (port unplugged, read error, or Stop).
func (p *Pipeline) consume(lines <-chan string) {
	defer close(p.done)

	for line := range lines {
		sample, err := p.dec.Decode(line)
		switch {
		case err == nil:
			p.buffer.Push(*sample)
			p.obs.IncCounter(observability.MetricSamplesDecoded, 1)
			if p.recorder != nil {
				if _, rerr := p.recorder.Append(sample); rerr != nil {
					p.obs.LogError("session_record_append_failed", rerr)
				}
			}
		case errors.Is(err, decoder.ErrDeviceMessage):
			p.obs.IncCounter(observability.MetricDeviceMessages, 1)
			p.obs.LogInfo("device_message", ports.Field{Key: "line", Value: line})
		default:
			p.obs.IncCounter(observability.MetricDecodeErrors, 1)
		}
	}
}

// Stop shuts the collector down and waits for the consume loop to drain.
// Safe to call more than once.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	err := p.collector.Stop()
	<-p.done
	return err
}

// Done is closed when the line stream has ended, whether by Stop or by the
// collector failing. Callers use it to notice an unplugged device.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// LineCounts reports total and malformed line counts since start. The
// performance monitor derives throughput and error rate from deltas.
func (p *Pipeline) LineCounts() (total, malformed uint64) {
	return p.dec.TotalLines(), p.dec.MalformedLines()
}
