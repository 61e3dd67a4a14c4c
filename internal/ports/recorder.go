package ports

import "github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"

// RecordID identifies one appended sample within a session log.
type RecordID uint64

// Recorder persists the raw sample stream of a session to an append-only log
// so a capture can be exported or replayed later. It sits off the acquisition
// hot path; Append failures are reported, never fatal.
type Recorder interface {
	Append(s *domain.Sample) (RecordID, error)
	Iterate(from RecordID, fn func(id RecordID, s *domain.Sample) error) error
	Stats() RecorderStats
	Close() error
}

// RecorderStats exposes session log metadata for health reporting.
type RecorderStats struct {
	LatestAppended RecordID
	SizeBytes      int64
}
