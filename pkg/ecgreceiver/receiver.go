// Package ecgreceiver wires the serial collector, decoder, sample buffer,
// analysis loop, diagnosis orchestrator, and monitoring into one embeddable
// runtime with simple lifecycle hooks.
package ecgreceiver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/diagnosis"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/observability"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/recorder"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/ring"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/serialline"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/analysis"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/config"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/orchestrator"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/pipeline"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/monitor"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	collector     ports.Collector
	client        ports.DiagnosisClient
	buffer        ports.SampleBuffer
	recorder      ports.Recorder
	observability ports.Observability
}

// WithCollector injects a custom line source (simulators, replay files, TCP
// bridges) in place of the serial port.
func WithCollector(col ports.Collector) Option {
	return func(o *overrides) { o.collector = col }
}

// WithDiagnosisClient injects a custom diagnosis backend.
func WithDiagnosisClient(c ports.DiagnosisClient) Option {
	return func(o *overrides) { o.client = c }
}

// WithBuffer lets callers bring their own sample buffer implementation.
func WithBuffer(b ports.SampleBuffer) Option {
	return func(o *overrides) { o.buffer = b }
}

// WithRecorder injects a session recorder, overriding the config toggle.
func WithRecorder(r ports.Recorder) Option {
	return func(o *overrides) { o.recorder = r }
}

// WithObservability plugs in a custom metrics/logging backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.observability = obs }
}

// MetricsUpdate is one tick of the analysis loop, paired with the latest
// performance observation.
type MetricsUpdate struct {
	At       time.Time
	Analysis analysis.Snapshot
	Perf     monitor.Snapshot
}

// Runtime owns the three lanes of the receiver: acquisition, diagnosis, and
// monitoring. Acquisition never blocks on the other two.
type Runtime struct {
	cfg  *config.Config
	obs  ports.Observability
	buf  ports.SampleBuffer
	rec  ports.Recorder
	pipe *pipeline.Pipeline
	orch *orchestrator.Orchestrator
	mon  *monitor.Monitor

	httpSrv      *http.Server
	analysisStop chan struct{}
	analysisDone chan struct{}

	subMu sync.Mutex
	subs  map[int]chan MetricsUpdate
	nexts int

	startOnce sync.Once
	startErr  error
	running   bool
	stopOnce  sync.Once
	stopErr   error
}

// New bootstraps the default adapters (serial collector, in-memory ring
// buffer, chat-completions diagnosis client, Prometheus observability) and
// applies any overrides.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var ov overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	obs := ov.observability
	if obs == nil {
		obs = observability.NewPromObs(nil)
	}

	buf := ov.buffer
	if buf == nil {
		buf = ring.New(cfg.Buffer.Capacity)
	}

	col := ov.collector
	if col == nil {
		var err error
		col, err = serialline.NewCollector(cfg.Serial)
		if err != nil {
			return nil, err
		}
	}

	client := ov.client
	if client == nil {
		var err error
		client, err = diagnosis.NewClient(cfg.Diagnosis.Config)
		if err != nil {
			return nil, err
		}
	}

	rec := ov.recorder
	if rec == nil && cfg.Recorder.Enabled {
		var err error
		rec, err = recorder.NewFileRecorder(cfg.Recorder.Dir)
		if err != nil {
			return nil, err
		}
	}

	pipe := pipeline.New(col, buf, rec, obs)
	orch := orchestrator.New(client, buf, obs, orchestrator.Options{
		Timeout:         cfg.Diagnosis.Timeout,
		MinData:         cfg.Diagnosis.MinData,
		HistoryCapacity: cfg.Diagnosis.HistoryCapacity,
		SampleRateHz:    cfg.Buffer.SampleRateHz,
	})
	mon := monitor.New(cfg.Analysis.Interval, buf, pipe, obs)

	return &Runtime{
		cfg:          cfg,
		obs:          obs,
		buf:          buf,
		rec:          rec,
		pipe:         pipe,
		orch:         orch,
		mon:          mon,
		analysisStop: make(chan struct{}),
		analysisDone: make(chan struct{}),
		subs:         make(map[int]chan MetricsUpdate),
	}, nil
}

// Start launches acquisition, monitoring, the analysis loop, and the HTTP
// endpoint. It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	r.startOnce.Do(func() {
		if err := r.pipe.Start(); err != nil {
			r.startErr = err
			return
		}
		r.running = true
		r.mon.Start()
		go r.analysisLoop()
		r.startHTTP()
		r.obs.LogInfo("receiver_started",
			ports.Field{Key: "port", Value: r.cfg.Serial.Port},
			ports.Field{Key: "metrics_addr", Value: r.cfg.Metrics.Addr})
	})
	return r.startErr
}

// Run starts the runtime and blocks until the context is cancelled or the
// line stream ends, then shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-r.pipe.Done():
		r.obs.LogError("line_stream_ended", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown cancels any in-flight diagnosis first, then stops the collector,
// monitor, HTTP server, and recorder. Safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() {
		var errs []error

		r.orch.Close()

		if r.running {
			close(r.analysisStop)
			<-r.analysisDone
			r.mon.Stop()
		}

		if r.httpSrv != nil {
			if err := r.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}

		if err := r.pipe.Stop(); err != nil {
			errs = append(errs, err)
		}

		if r.rec != nil {
			if err := r.rec.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		r.closeSubscribers()
		r.stopErr = errors.Join(errs...)
	})
	return r.stopErr
}

// StreamClosed is closed when the line stream has ended, whether by Shutdown
// or by the device going away.
func (r *Runtime) StreamClosed() <-chan struct{} { return r.pipe.Done() }

// RequestDiagnosis starts a manual diagnosis with an optional patient context.
func (r *Runtime) RequestDiagnosis(patient *domain.PatientContext) (domain.DiagnosisReport, error) {
	return r.orch.Request(patient)
}

// CancelDiagnosis aborts any in-flight request and waits for it to resolve.
func (r *Runtime) CancelDiagnosis() { r.orch.Cancel() }

// SetAutoMode toggles periodic diagnosis at the configured interval.
func (r *Runtime) SetAutoMode(enabled bool) {
	r.orch.SetAutoMode(enabled, r.cfg.Diagnosis.AutoInterval)
}

// AutoMode reports whether periodic diagnosis is running.
func (r *Runtime) AutoMode() bool { return r.orch.AutoMode() }

// History returns retained diagnosis reports, oldest first.
func (r *Runtime) History() []domain.DiagnosisReport { return r.orch.History() }

// PerfSnapshot returns the most recent monitor observation.
func (r *Runtime) PerfSnapshot() monitor.Snapshot { return r.mon.Last() }

// SubscribeDiagnoses delivers resolved diagnosis reports. The returned cancel
// func releases the subscription.
func (r *Runtime) SubscribeDiagnoses(buf int) (<-chan domain.DiagnosisReport, func()) {
	return r.orch.Subscribe(buf)
}

// SubscribeMetrics delivers one MetricsUpdate per analysis tick. Slow
// consumers drop updates rather than stalling the loop.
func (r *Runtime) SubscribeMetrics(buf int) (<-chan MetricsUpdate, func()) {
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan MetricsUpdate, buf)

	r.subMu.Lock()
	id := r.nexts
	r.nexts++
	r.subs[id] = ch
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Runtime) analysisLoop() {
	defer close(r.analysisDone)

	ticker := time.NewTicker(r.cfg.Analysis.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.analysisStop:
			return
		case <-ticker.C:
			snap := analysis.Estimate(r.buf.Snapshot(0))
			if snap.HasHeartRate {
				r.obs.SetGauge(observability.MetricHeartRateBPM, snap.HeartRateBPM)
			}
			r.publishMetrics(MetricsUpdate{
				At:       time.Now(),
				Analysis: snap,
				Perf:     r.mon.Last(),
			})
		}
	}
}

func (r *Runtime) publishMetrics(u MetricsUpdate) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (r *Runtime) closeSubscribers() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}
