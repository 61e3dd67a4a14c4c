// Package orchestrator drives diagnosis requests through their lifecycle:
// idle → requesting → {succeeded, failed, timed out, cancelled} → idle.
// At most one request is in flight at any time; a second attempt is rejected,
// never queued.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/observability"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/analysis"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Rejection errors surfaced to the caller without touching history.
var (
	ErrAlreadyInProgress = errors.New("orchestrator: diagnosis already in progress")
	ErrInsufficientData  = errors.New("orchestrator: insufficient buffered data")
)

// Options bound the orchestrator's behavior.
type Options struct {
	Timeout         time.Duration
	MinData         time.Duration
	HistoryCapacity int
	SampleRateHz    float64
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MinData <= 0 {
		o.MinData = 4 * time.Second
	}
	if o.HistoryCapacity <= 0 {
		o.HistoryCapacity = 50
	}
	if o.SampleRateHz <= 0 {
		o.SampleRateHz = 250
	}
}

type inflight struct {
	id     string
	auto   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator owns the diagnosis lane. It is safe for concurrent use; the
// remote call runs on its own goroutine so a hung service never stalls
// sample ingestion.
type Orchestrator struct {
	opts   Options
	client ports.DiagnosisClient
	buffer ports.SampleBuffer
	obs    ports.Observability

	mu       sync.Mutex
	inflight *inflight
	history  []domain.DiagnosisReport
	lastCtx  *domain.PatientContext

	autoStop chan struct{}
	autoWG   sync.WaitGroup

	subMu sync.Mutex
	subs  map[int]chan domain.DiagnosisReport
	nexts int
}

func New(client ports.DiagnosisClient, buffer ports.SampleBuffer, obs ports.Observability, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		opts:    opts,
		client:  client,
		buffer:  buffer,
		obs:     obs,
		history: make([]domain.DiagnosisReport, 0, opts.HistoryCapacity),
		subs:    make(map[int]chan domain.DiagnosisReport),
	}
}

// Request starts a diagnosis using the current buffer contents. It returns
// the pending report immediately; resolution is delivered through Subscribe
// and recorded in History.
func (o *Orchestrator) Request(patient *domain.PatientContext) (domain.DiagnosisReport, error) {
	return o.request(patient, false)
}

func (o *Orchestrator) request(patient *domain.PatientContext, auto bool) (domain.DiagnosisReport, error) {
	o.mu.Lock()
	if o.inflight != nil {
		o.mu.Unlock()
		return domain.DiagnosisReport{}, ErrAlreadyInProgress
	}

	window := o.buffer.Snapshot(0)
	if !hasEnoughData(window, o.opts.MinData) {
		o.mu.Unlock()
		return domain.DiagnosisReport{}, ErrInsufficientData
	}

	if patient != nil {
		ctx := *patient
		o.lastCtx = &ctx
	}

	report := domain.DiagnosisReport{
		ID:          uuid.NewString(),
		RequestedAt: time.Now(),
		Status:      domain.StatusPending,
		Auto:        auto,
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.Timeout)
	fl := &inflight{id: report.ID, auto: auto, cancel: cancel, done: make(chan struct{})}
	o.inflight = fl
	o.mu.Unlock()

	o.obs.IncCounter(observability.MetricDiagnosesStarted, 1)

	snap := analysis.Estimate(window)
	req := &ports.DiagnosisRequest{
		Samples:      window,
		SampleRateHz: o.opts.SampleRateHz,
		Summary:      snap.Summary,
		Patient:      patient,
	}

	go o.dispatch(ctx, fl, report, req)
	return report.Clone(), nil
}

func (o *Orchestrator) dispatch(ctx context.Context, fl *inflight, report domain.DiagnosisReport, req *ports.DiagnosisRequest) {
	defer close(fl.done)
	defer fl.cancel()

	start := time.Now()
	result, err := o.client.Diagnose(ctx, req)
	report.CompletedAt = time.Now()

	switch {
	case err == nil:
		report.Status = domain.StatusSucceeded
		normalize(&report, result, o.obs)
	case errors.Is(err, context.DeadlineExceeded):
		report.Status = domain.StatusTimedOut
		report.Err = "diagnosis timed out"
	case errors.Is(err, context.Canceled):
		report.Status = domain.StatusCancelled
		report.Err = "diagnosis cancelled"
	default:
		report.Status = domain.StatusFailed
		report.Err = err.Error()
	}

	if report.Status == domain.StatusSucceeded {
		o.obs.ObserveLatency(observability.MetricDiagnosisLatency, time.Since(start).Seconds())
	} else {
		o.obs.IncCounter(observability.MetricDiagnosesFailed, 1)
		o.obs.LogError("diagnosis_not_succeeded", err,
			ports.Field{Key: "id", Value: report.ID},
			ports.Field{Key: "status", Value: string(report.Status)})
	}

	o.mu.Lock()
	if o.inflight == fl {
		o.inflight = nil
	}
	o.appendHistoryLocked(report)
	o.mu.Unlock()

	o.publish(report)
}

// normalize applies the response policy: clamp confidence to [0,1] and
// coerce unknown severity tokens to moderate with a warning flag.
func normalize(report *domain.DiagnosisReport, result *ports.DiagnosisResult, obs ports.Observability) {
	report.Finding = result.Finding
	report.Recommendations = append([]string(nil), result.Recommendations...)

	conf := result.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	report.Confidence = conf

	switch domain.Severity(strings.ToLower(strings.TrimSpace(result.Severity))) {
	case domain.SeverityLow:
		report.Severity = domain.SeverityLow
	case domain.SeverityModerate:
		report.Severity = domain.SeverityModerate
	case domain.SeverityHigh:
		report.Severity = domain.SeverityHigh
	case domain.SeverityCritical:
		report.Severity = domain.SeverityCritical
	default:
		report.Severity = domain.SeverityModerate
		report.SeverityCoerced = true
		obs.LogError("unknown_severity_token", nil,
			ports.Field{Key: "token", Value: result.Severity})
	}
}

// Cancel aborts any in-flight request and waits for it to resolve.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	fl := o.inflight
	o.mu.Unlock()
	if fl == nil {
		return
	}
	fl.cancel()
	<-fl.done
}

// InFlight reports the id of the outstanding request, if any.
func (o *Orchestrator) InFlight() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil {
		return "", false
	}
	return o.inflight.id, true
}

// SetAutoMode enables or disables periodic diagnosis using the last provided
// patient context. Disabling cancels an in-flight auto-triggered request but
// leaves a manual one untouched.
func (o *Orchestrator) SetAutoMode(enabled bool, interval time.Duration) {
	o.mu.Lock()
	if enabled {
		if o.autoStop != nil {
			o.mu.Unlock()
			return
		}
		if interval <= 0 {
			interval = 30 * time.Second
		}
		stop := make(chan struct{})
		o.autoStop = stop
		o.autoWG.Add(1)
		o.mu.Unlock()

		go o.autoLoop(stop, interval)
		return
	}

	stop := o.autoStop
	o.autoStop = nil
	o.mu.Unlock()

	if stop != nil {
		close(stop)
		o.autoWG.Wait()
	}

	// Sample in-flight only after the trigger loop has drained: a tick may
	// still start one last auto request before it observes stop.
	o.mu.Lock()
	var fl *inflight
	if o.inflight != nil && o.inflight.auto {
		fl = o.inflight
	}
	o.mu.Unlock()

	if fl != nil {
		fl.cancel()
		<-fl.done
	}
}

// AutoMode reports whether the periodic trigger is running.
func (o *Orchestrator) AutoMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoStop != nil
}

func (o *Orchestrator) autoLoop(stop <-chan struct{}, interval time.Duration) {
	defer o.autoWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.mu.Lock()
			patient := o.lastCtx
			o.mu.Unlock()

			// A busy orchestrator skips the tick; triggers are never queued.
			if _, err := o.request(patient, true); err != nil &&
				!errors.Is(err, ErrAlreadyInProgress) && !errors.Is(err, ErrInsufficientData) {
				o.obs.LogError("auto_diagnosis_trigger_failed", err)
			}
		}
	}
}

// History returns the retained reports, oldest first.
func (o *Orchestrator) History() []domain.DiagnosisReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.DiagnosisReport, len(o.history))
	for i, r := range o.history {
		out[i] = r.Clone()
	}
	return out
}

func (o *Orchestrator) appendHistoryLocked(report domain.DiagnosisReport) {
	if len(o.history) >= o.opts.HistoryCapacity {
		// Evict oldest, same discipline as the sample buffer.
		copy(o.history, o.history[1:])
		o.history = o.history[:len(o.history)-1]
	}
	o.history = append(o.history, report)
}

// Subscribe returns a channel receiving resolved reports. Slow subscribers
// drop updates rather than stalling the diagnosis lane.
func (o *Orchestrator) Subscribe(buf int) (<-chan domain.DiagnosisReport, func()) {
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan domain.DiagnosisReport, buf)

	o.subMu.Lock()
	id := o.nexts
	o.nexts++
	o.subs[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.subMu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) publish(report domain.DiagnosisReport) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- report.Clone():
		default:
		}
	}
}

// Close cancels auto mode and any in-flight request.
func (o *Orchestrator) Close() {
	o.SetAutoMode(false, 0)
	o.Cancel()
}

func hasEnoughData(window []domain.Sample, minData time.Duration) bool {
	if len(window) < 2 {
		return false
	}
	span := window[len(window)-1].Timestamp.Sub(window[0].Timestamp)
	return span >= minData
}
