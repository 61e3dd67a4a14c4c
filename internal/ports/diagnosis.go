package ports

import (
	"context"
	"errors"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
)

// Classifiable failure kinds for the remote diagnosis call. The orchestrator
// records these on the report; none of them is fatal to the pipeline.
var (
	ErrUnauthorized    = errors.New("diagnosis: unauthorized")
	ErrRateLimited     = errors.New("diagnosis: rate limited")
	ErrUnreachable     = errors.New("diagnosis: service unreachable")
	ErrInvalidResponse = errors.New("diagnosis: invalid response")
)

// WindowSummary carries the derived features of the analysis window that
// accompany the raw samples in a diagnosis request.
type WindowSummary struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	PeakToPeak   float64 `json:"peak_to_peak"`
	RMS          float64 `json:"rms"`
	SampleCount  int     `json:"sample_count"`
	DurationSecs float64 `json:"duration_seconds"`

	HeartRateBPM float64 `json:"heart_rate_bpm,omitempty"`
	PeakCount    int     `json:"peak_count"`
	MeanRRMillis float64 `json:"mean_rr_ms,omitempty"`
	SDNNMillis   float64 `json:"sdnn_ms,omitempty"`
	RMSSDMillis  float64 `json:"rmssd_ms,omitempty"`
}

// DiagnosisRequest is the logical request contract of the remote service.
type DiagnosisRequest struct {
	Samples      []domain.Sample
	SampleRateHz float64
	Summary      WindowSummary
	Patient      *domain.PatientContext
}

// DiagnosisResult holds the service response before the orchestrator
// normalizes severity and confidence.
type DiagnosisResult struct {
	Finding         string
	Severity        string
	Confidence      float64
	Recommendations []string
}

// DiagnosisClient dispatches one diagnosis request. Implementations must
// honor ctx cancellation so the orchestrator can enforce its timeout.
type DiagnosisClient interface {
	Diagnose(ctx context.Context, req *DiagnosisRequest) (*DiagnosisResult, error)
}
