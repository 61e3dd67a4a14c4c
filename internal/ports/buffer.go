package ports

import "github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"

// SampleBuffer is the bounded rolling window of recent samples. Push never
// blocks and never fails; when full the oldest sample is evicted. Snapshot
// returns an independent copy ordered by sequence index ascending.
type SampleBuffer interface {
	Push(s domain.Sample)
	// Snapshot returns the most recent n samples, or every buffered sample
	// when n <= 0.
	Snapshot(n int) []domain.Sample
	Len() int
	Capacity() int
	Clear()
}
