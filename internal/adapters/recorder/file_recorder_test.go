package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

func TestFileRecorderAppendIterateReopen(t *testing.T) {
	dir := t.TempDir()

	r, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	id1, err := r.Append(&domain.Sample{Seq: 1, Value: -7})
	if err != nil || id1 == 0 {
		t.Fatalf("append sample 1: %v id=%d", err, id1)
	}
	id2, err := r.Append(&domain.Sample{Seq: 2, Value: 1024})
	if err != nil || id2 != id1+1 {
		t.Fatalf("append sample 2: %v id=%d", err, id2)
	}

	var values []float64
	if err := r.Iterate(1, func(id ports.RecordID, s *domain.Sample) error {
		values = append(values, s.Value)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(values) != 2 || values[0] != -7 || values[1] != 1024 {
		t.Fatalf("unexpected records: %v", values)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen continues the id sequence.
	r2, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()

	if stats := r2.Stats(); stats.LatestAppended != id2 {
		t.Fatalf("latest appended = %d, want %d", stats.LatestAppended, id2)
	}
	id3, err := r2.Append(&domain.Sample{Seq: 3, Value: 9})
	if err != nil || id3 != id2+1 {
		t.Fatalf("append after reopen: %v id=%d", err, id3)
	}
}

func TestFileRecorderIterateFrom(t *testing.T) {
	r, err := NewFileRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer r.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		if _, err := r.Append(&domain.Sample{Seq: seq}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var seqs []uint64
	if err := r.Iterate(4, func(id ports.RecordID, s *domain.Sample) error {
		seqs = append(seqs, s.Seq)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 4 || seqs[1] != 5 {
		t.Fatalf("unexpected tail records: %v", seqs)
	}
}

func TestFileRecorderTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()

	r, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if _, err := r.Append(&domain.Sample{Seq: 1, Value: 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulate a torn write at the tail of the log.
	path := filepath.Join(dir, "session.log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for garbage: %v", err)
	}
	if _, err := f.Write([]byte{0xFF, 0xAA}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = f.Close()

	r2, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer r2.Close()

	var count int
	if err := r2.Iterate(1, func(ports.RecordID, *domain.Sample) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("iterate after truncation: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 intact record, got %d", count)
	}
}
