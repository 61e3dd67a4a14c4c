// Package observability provides the default Observability backend:
// Prometheus metrics plus zerolog structured logging.
package observability

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Metric names owned by this adapter. Producers reference these constants
// instead of repeating strings.
const (
	MetricSamplesDecoded    = "ecg_samples_decoded_total"
	MetricDecodeErrors      = "ecg_decode_errors_total"
	MetricDeviceMessages    = "ecg_device_messages_total"
	MetricDiagnosesStarted  = "ecg_diagnoses_started_total"
	MetricDiagnosesFailed   = "ecg_diagnoses_failed_total"
	MetricBufferFillRatio   = "ecg_buffer_fill_ratio"
	MetricHeartRateBPM      = "ecg_heart_rate_bpm"
	MetricProcessCPUPercent = "ecg_process_cpu_percent"
	MetricProcessMemBytes   = "ecg_process_memory_bytes"
	MetricDecodeErrorRate   = "ecg_decode_error_rate"
	MetricDiagnosisLatency  = "ecg_diagnosis_latency_seconds"
)

type PromObs struct {
	log      zerolog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the receiver's metrics with the given registerer
// (the default registerer when nil) and logs to stderr.
func NewPromObs(reg prometheus.Registerer) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decoded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricSamplesDecoded,
		Help: "Lines successfully decoded into samples.",
	})
	decodeErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricDecodeErrors,
		Help: "Lines matching no accepted format.",
	})
	deviceMsgs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricDeviceMessages,
		Help: "ERROR/INFO status lines emitted by the device.",
	})
	diagStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricDiagnosesStarted,
		Help: "Diagnosis requests dispatched to the remote service.",
	})
	diagFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricDiagnosesFailed,
		Help: "Diagnosis requests that resolved failed, timed out, or cancelled.",
	})
	fill := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricBufferFillRatio,
		Help: "Current fill ratio of the circular sample buffer.",
	})
	hr := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricHeartRateBPM,
		Help: "Most recent heart-rate estimate.",
	})
	cpu := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricProcessCPUPercent,
		Help: "Process CPU usage percent.",
	})
	mem := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricProcessMemBytes,
		Help: "Process resident memory in bytes.",
	})
	errRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricDecodeErrorRate,
		Help: "Malformed-line fraction over the last monitor interval.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricDiagnosisLatency,
		Help:    "Round-trip latency of remote diagnosis calls.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	reg.MustRegister(decoded, decodeErrs, deviceMsgs, diagStarted, diagFailed,
		fill, hr, cpu, mem, errRate, latency)

	return &PromObs{
		log: zerolog.New(os.Stderr).With().Timestamp().Str("component", "ecg-receiver").Logger(),
		counters: map[string]prometheus.Counter{
			MetricSamplesDecoded:   decoded,
			MetricDecodeErrors:     decodeErrs,
			MetricDeviceMessages:   deviceMsgs,
			MetricDiagnosesStarted: diagStarted,
			MetricDiagnosesFailed:  diagFailed,
		},
		gauges: map[string]prometheus.Gauge{
			MetricBufferFillRatio:   fill,
			MetricHeartRateBPM:      hr,
			MetricProcessCPUPercent: cpu,
			MetricProcessMemBytes:   mem,
			MetricDecodeErrorRate:   errRate,
		},
		histos: map[string]prometheus.Observer{
			MetricDiagnosisLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	ev := p.log.Info()
	addFields(ev, fields)
	ev.Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	ev := p.log.Error().Err(err)
	addFields(ev, fields)
	ev.Msg(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	ev := p.log.Error().Bool("critical", true).Err(err)
	addFields(ev, fields)
	ev.Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func addFields(ev *zerolog.Event, fields []ports.Field) {
	for _, f := range fields {
		ev.Interface(f.Key, f.Value)
	}
}

var _ ports.Observability = (*PromObs)(nil)
