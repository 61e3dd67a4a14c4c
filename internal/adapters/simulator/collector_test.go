package simulator

import (
	"strconv"
	"testing"
	"time"
)

func TestSimulatorEmitsNumericLines(t *testing.T) {
	c := NewCollector(Config{SampleRateHz: 500})
	out := make(chan string, 64)
	if err := c.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}

	var lines []string
	deadline := time.After(2 * time.Second)
	for len(lines) < 10 {
		select {
		case line := <-out:
			lines = append(lines, line)
		case <-deadline:
			t.Fatalf("got %d lines before deadline", len(lines))
		}
	}

	for _, line := range lines {
		if _, err := strconv.ParseFloat(line, 64); err != nil {
			t.Fatalf("non-numeric line %q: %v", line, err)
		}
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Channel closes once the generator has drained.
	deadline = time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("output channel not closed after stop")
		}
	}
}

func TestSimulatorDoubleStartRejected(t *testing.T) {
	c := NewCollector(Config{})
	out := make(chan string, 8)
	if err := c.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(make(chan string)); err == nil {
		t.Fatalf("expected second start to fail")
	}
}
