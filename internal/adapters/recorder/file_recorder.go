// Package recorder persists the decoded sample stream of a capture session
// to an append-only, binary-framed log for later export or replay.
package recorder

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

const recordHeaderLen = 12

// FileRecorder writes samples to <dir>/session.log. Records are framed as
// [8 bytes id][4 bytes len][len bytes json], so a torn tail write is
// detected and truncated on reopen.
type FileRecorder struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.RecordID
	sizeBytes int64
}

func NewFileRecorder(dir string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "session.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	r := &FileRecorder{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, 1<<16),
	}
	if err := r.scanExisting(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := r.file.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *FileRecorder) scanExisting() error {
	stat, err := os.Stat(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.RecordID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("session scan header: %w", err)
		}
		id := ports.RecordID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if length > 0 {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return fmt.Errorf("session scan body: %w", err)
			}
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	// Drop any torn trailing record.
	if err := r.file.Truncate(offset); err != nil {
		return err
	}
	r.sizeBytes = offset
	r.nextID = lastID
	return nil
}

func (r *FileRecorder) Append(s *domain.Sample) (ports.RecordID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID + 1

	b, err := json.Marshal(s)
	if err != nil {
		return 0, err
	}

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := r.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := r.writer.Write(b); err != nil {
		return 0, err
	}

	r.nextID = id
	r.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

func (r *FileRecorder) Iterate(from ports.RecordID, fn func(id ports.RecordID, s *domain.Sample) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session log truncated header: %w", err)
		}
		id := ports.RecordID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, length)
		if _, err := io.ReadFull(reader, b); err != nil {
			return fmt.Errorf("corrupt session record: %w", err)
		}
		if id < from {
			continue
		}

		var s domain.Sample
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("corrupt session record: %w", err)
		}
		if err := fn(id, &s); err != nil {
			return err
		}
	}
}

func (r *FileRecorder) Stats() ports.RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ports.RecorderStats{
		LatestAppended: r.nextID,
		SizeBytes:      r.sizeBytes,
	}
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		_ = r.file.Close()
		return err
	}
	return r.file.Close()
}

var _ ports.Recorder = (*FileRecorder)(nil)
