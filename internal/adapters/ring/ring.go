package ring

import (
	"sync"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Buffer is a fixed-capacity circular store of decoded samples. Push is O(1)
// and evicts the oldest sample when full. Readers get copies; internal
// storage never escapes.
type Buffer struct {
	mu    sync.Mutex
	data  []domain.Sample
	head  int
	count int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{data: make([]domain.Sample, capacity)}
}

func (b *Buffer) Push(s domain.Sample) {
	b.mu.Lock()
	b.data[b.head] = s
	b.head = (b.head + 1) % len(b.data)
	if b.count < len(b.data) {
		b.count++
	}
	b.mu.Unlock()
}

// Snapshot returns the most recent n samples in insertion order, or all
// buffered samples when n <= 0. The returned slice is an independent copy.
func (b *Buffer) Snapshot(n int) []domain.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	if n == 0 {
		return nil
	}

	out := make([]domain.Sample, n)
	// head points at the next write slot; the newest sample sits just
	// behind it, the requested window ends there.
	start := b.head - n
	if start < 0 {
		start += len(b.data)
	}
	for i := 0; i < n; i++ {
		out[i] = b.data[(start+i)%len(b.data)]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Buffer) Capacity() int {
	return len(b.data)
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	b.head = 0
	b.count = 0
	b.mu.Unlock()
}

var _ ports.SampleBuffer = (*Buffer)(nil)
