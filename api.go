package ecgreceiver

import (
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/config"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	base "github.com/GanQiao1990/ecg-receiver-standalone/pkg/ecgreceiver"
)

// Type aliases so consumers can import the module root directly.
type (
	Config          = config.Config
	Runtime         = base.Runtime
	Option          = base.Option
	MetricsUpdate   = base.MetricsUpdate
	Sample          = domain.Sample
	PatientContext  = domain.PatientContext
	DiagnosisReport = domain.DiagnosisReport
	DiagnosisStatus = domain.DiagnosisStatus
	Severity        = domain.Severity
)

// Re-exported errors for convenience.
var (
	ErrUnauthorized      = base.ErrUnauthorized
	ErrRateLimited       = base.ErrRateLimited
	ErrUnreachable       = base.ErrUnreachable
	ErrInvalidResponse   = base.ErrInvalidResponse
	ErrAlreadyInProgress = base.ErrAlreadyInProgress
	ErrInsufficientData  = base.ErrInsufficientData
)

// Diagnosis lifecycle statuses.
const (
	StatusPending   = domain.StatusPending
	StatusSucceeded = domain.StatusSucceeded
	StatusFailed    = domain.StatusFailed
	StatusTimedOut  = domain.StatusTimedOut
	StatusCancelled = domain.StatusCancelled
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Runtime constructor and dependency overrides.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.New(cfg, opts...)
}

func WithCollector(col base.Collector) Option {
	return base.WithCollector(col)
}

func WithDiagnosisClient(c base.DiagnosisClient) Option {
	return base.WithDiagnosisClient(c)
}

func WithBuffer(b base.SampleBuffer) Option {
	return base.WithBuffer(b)
}

func WithRecorder(r base.Recorder) Option {
	return base.WithRecorder(r)
}

func WithObservability(obs base.Observability) Option {
	return base.WithObservability(obs)
}
