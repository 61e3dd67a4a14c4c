package ecgreceiver

import (
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/app/orchestrator"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Aliases for the port interfaces so embedders can provide custom
// implementations without importing internal packages.
type (
	Collector       = ports.Collector
	SampleBuffer    = ports.SampleBuffer
	Recorder        = ports.Recorder
	RecordID        = ports.RecordID
	RecorderStats   = ports.RecorderStats
	DiagnosisClient = ports.DiagnosisClient
	DiagnosisResult = ports.DiagnosisResult
	WindowSummary   = ports.WindowSummary
	Observability   = ports.Observability
	Field           = ports.Field
)

// Sentinel errors surfaced by the default diagnosis client.
var (
	ErrUnauthorized    = ports.ErrUnauthorized
	ErrRateLimited     = ports.ErrRateLimited
	ErrUnreachable     = ports.ErrUnreachable
	ErrInvalidResponse = ports.ErrInvalidResponse
)

// Rejection errors returned by RequestDiagnosis.
var (
	ErrAlreadyInProgress = orchestrator.ErrAlreadyInProgress
	ErrInsufficientData  = orchestrator.ErrInsufficientData
)
