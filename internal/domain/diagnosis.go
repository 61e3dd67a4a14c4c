package domain

import "time"

// DiagnosisStatus tracks a diagnosis request through its lifecycle.
type DiagnosisStatus string

const (
	StatusPending   DiagnosisStatus = "pending"
	StatusSucceeded DiagnosisStatus = "succeeded"
	StatusFailed    DiagnosisStatus = "failed"
	StatusTimedOut  DiagnosisStatus = "timed_out"
	StatusCancelled DiagnosisStatus = "cancelled"
)

// Terminal reports whether the status is a resting state.
func (s DiagnosisStatus) Terminal() bool {
	return s != StatusPending
}

// Severity is the bounded severity scale reported by the diagnosis service.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// PatientContext is optional caller-supplied metadata attached to a
// diagnosis request. The most recent context is reused by auto-triggered
// requests.
type PatientContext struct {
	Age      int    `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Symptoms string `json:"symptoms,omitempty"`
}

// DiagnosisReport records one diagnosis request from dispatch to resolution.
// The orchestrator is the only writer; copies handed to consumers are
// immutable by convention.
type DiagnosisReport struct {
	ID              string          `json:"id"`
	RequestedAt     time.Time       `json:"requested_at"`
	CompletedAt     time.Time       `json:"completed_at,omitempty"`
	Status          DiagnosisStatus `json:"status"`
	Finding         string          `json:"finding,omitempty"`
	Severity        Severity        `json:"severity,omitempty"`
	SeverityCoerced bool            `json:"severity_coerced,omitempty"`
	Confidence      float64         `json:"confidence,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Err             string          `json:"error,omitempty"`
	Auto            bool            `json:"auto,omitempty"`
}

// Clone returns a deep copy safe to hand to subscribers.
func (r DiagnosisReport) Clone() DiagnosisReport {
	out := r
	if len(r.Recommendations) > 0 {
		out.Recommendations = append([]string(nil), r.Recommendations...)
	}
	return out
}
