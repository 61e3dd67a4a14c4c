package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObsMetrics(t *testing.T) {
	obs := NewPromObs(prometheus.NewRegistry())

	obs.IncCounter(MetricSamplesDecoded, 5)
	if got := testutil.ToFloat64(obs.counters[MetricSamplesDecoded]); got != 5 {
		t.Fatalf("expected decoded counter 5, got %f", got)
	}

	obs.IncCounter(MetricDecodeErrors, 2)
	if got := testutil.ToFloat64(obs.counters[MetricDecodeErrors]); got != 2 {
		t.Fatalf("expected decode error counter 2, got %f", got)
	}

	obs.SetGauge(MetricBufferFillRatio, 0.5)
	if got := testutil.ToFloat64(obs.gauges[MetricBufferFillRatio]); got != 0.5 {
		t.Fatalf("expected fill gauge 0.5, got %f", got)
	}

	obs.ObserveLatency(MetricDiagnosisLatency, 0.25)
	hCollector := obs.histos[MetricDiagnosisLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	// Unknown names are ignored, not registered lazily.
	obs.IncCounter("no_such_metric", 1)
	obs.SetGauge("no_such_metric", 1)
}
