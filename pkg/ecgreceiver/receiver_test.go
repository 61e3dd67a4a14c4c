package ecgreceiver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/observability"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/config"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// scriptCollector replays lines with a small delay so decoded samples span a
// measurable window, then holds the stream open until Stop.
type scriptCollector struct {
	lines []string
	delay time.Duration

	once sync.Once
	stop chan struct{}
}

func newScriptCollector(lines []string, delay time.Duration) *scriptCollector {
	return &scriptCollector{lines: lines, delay: delay, stop: make(chan struct{})}
}

func (s *scriptCollector) Start(out chan<- string) error {
	go func() {
		defer close(out)
		for _, line := range s.lines {
			select {
			case <-s.stop:
				return
			case out <- line:
			}
			if s.delay > 0 {
				time.Sleep(s.delay)
			}
		}
		<-s.stop
	}()
	return nil
}

func (s *scriptCollector) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

type stubClient struct {
	result ports.DiagnosisResult
}

func (s *stubClient) Diagnose(ctx context.Context, req *ports.DiagnosisRequest) (*ports.DiagnosisResult, error) {
	out := s.result
	return &out, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Serial.Port = "/dev/null"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Buffer.Capacity = 256
	cfg.Diagnosis.MinData = 10 * time.Millisecond
	cfg.Diagnosis.Timeout = 2 * time.Second
	cfg.Analysis.Interval = 20 * time.Millisecond
	return cfg
}

func numberLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "512"
	}
	return lines
}

func newTestRuntime(t *testing.T, col ports.Collector, client ports.DiagnosisClient) *Runtime {
	t.Helper()
	rt, err := New(testConfig(),
		WithCollector(col),
		WithDiagnosisClient(client),
		WithObservability(observability.NewPromObs(prometheus.NewRegistry())),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	return rt
}

func TestRuntimeLifecycle(t *testing.T) {
	col := newScriptCollector(numberLines(100), time.Millisecond)
	client := &stubClient{result: ports.DiagnosisResult{
		Finding:    "Normal sinus rhythm",
		Severity:   "low",
		Confidence: 0.9,
	}}
	rt := newTestRuntime(t, col, client)

	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Wait until enough samples span the minimum window.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && rt.buf.Len() < 50 {
		time.Sleep(5 * time.Millisecond)
	}

	reports, cancelSub := rt.SubscribeDiagnoses(1)
	defer cancelSub()

	if _, err := rt.RequestDiagnosis(&domain.PatientContext{Age: 54}); err != nil {
		t.Fatalf("request diagnosis: %v", err)
	}

	select {
	case report := <-reports:
		if report.Status != domain.StatusSucceeded {
			t.Fatalf("status = %s, want succeeded", report.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("diagnosis did not resolve")
	}

	if got := len(rt.History()); got != 1 {
		t.Fatalf("history len = %d, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	select {
	case <-rt.StreamClosed():
	case <-time.After(time.Second):
		t.Fatalf("stream should be closed after shutdown")
	}
}

func TestRuntimeMetricsSubscription(t *testing.T) {
	col := newScriptCollector(numberLines(50), time.Millisecond)
	rt := newTestRuntime(t, col, &stubClient{})

	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})

	updates, cancelSub := rt.SubscribeMetrics(1)
	defer cancelSub()

	select {
	case u := <-updates:
		if u.At.IsZero() {
			t.Fatalf("update missing timestamp")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no metrics update delivered")
	}
}

func TestControlAPI(t *testing.T) {
	col := newScriptCollector(numberLines(200), time.Millisecond)
	client := &stubClient{result: ports.DiagnosisResult{
		Finding:    "Sinus tachycardia",
		Severity:   "moderate",
		Confidence: 0.8,
	}}
	rt := newTestRuntime(t, col, client)

	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})

	srv := httptest.NewServer(rt.routes())
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", err, res)
	}
	res.Body.Close()

	res, err = http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status statusResponse
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	res.Body.Close()
	if status.BufferCapacity != 256 {
		t.Fatalf("status capacity = %d, want 256", status.BufferCapacity)
	}

	// Toggle auto mode through the API.
	res, err = http.Post(srv.URL+"/api/v1/auto", "application/json",
		bytes.NewBufferString(`{"enabled":true}`))
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("auto on: %v %v", err, res)
	}
	res.Body.Close()
	if !rt.AutoMode() {
		t.Fatalf("auto mode should be enabled")
	}
	res, err = http.Post(srv.URL+"/api/v1/auto", "application/json",
		bytes.NewBufferString(`{"enabled":false}`))
	if err != nil {
		t.Fatalf("auto off: %v", err)
	}
	res.Body.Close()

	// Manual diagnosis once the window is long enough.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && rt.buf.Len() < 50 {
		time.Sleep(5 * time.Millisecond)
	}

	res, err = http.Post(srv.URL+"/api/v1/diagnose", "application/json",
		bytes.NewBufferString(`{"age":61,"gender":"female"}`))
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("diagnose status = %d, want 202", res.StatusCode)
	}
	var report domain.DiagnosisReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ID == "" || report.Status != domain.StatusPending {
		t.Fatalf("unexpected pending report: %+v", report)
	}
}

func TestRuntimeRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
