// Package decoder classifies raw acquisition lines into samples. Detection is
// per line, with a fixed strategy order: DATA-tagged lines only ever parse as
// structured CSV frames; untagged lines try bare numeric first, then the
// multi-token form. The first strategy that matches wins, so behavior stays
// deterministic regardless of input mix.
package decoder

import (
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
)

// ErrUnrecognizedFormat marks a line matching none of the accepted shapes.
// Such lines are counted and dropped, never fatal.
var ErrUnrecognizedFormat = errors.New("decoder: unrecognized line format")

// ErrDeviceMessage marks ERROR,/INFO, status lines emitted by the firmware.
// They are not sample data and do not count as malformed.
var ErrDeviceMessage = errors.New("decoder: device status message")

// maxMultiTokens bounds the multi-value form; longer lines are treated as
// unrecognized rather than guessed at.
const maxMultiTokens = 5

type clock func() time.Time

// Decoder assigns locally monotonic sequence indices and capture timestamps
// to decoded samples. Decoding itself is stateless per line.
type Decoder struct {
	seq       atomic.Uint64
	total     atomic.Uint64
	malformed atomic.Uint64
	now       clock
}

func New() *Decoder {
	return &Decoder{now: time.Now}
}

// NewWithClock is used by tests to pin capture timestamps.
func NewWithClock(now func() time.Time) *Decoder {
	return &Decoder{now: now}
}

// Decode parses one raw line. On success the sample carries the next
// sequence index and a wall-clock capture timestamp.
func (d *Decoder) Decode(raw string) (*domain.Sample, error) {
	d.total.Add(1)

	line := strings.TrimSpace(raw)
	if line == "" {
		d.malformed.Add(1)
		return nil, ErrUnrecognizedFormat
	}

	if strings.HasPrefix(line, "ERROR,") || strings.HasPrefix(line, "INFO,") {
		return nil, ErrDeviceMessage
	}

	// The DATA tag is binding: a tagged line that fails the structured parse
	// is malformed, never reinterpreted by the numeric fallbacks. Otherwise
	// a truncated frame would leak its timestamp field as a sample value.
	strategies := []func(string) (float64, map[string]float64, bool){
		parseBareNumeric,
		parseMultiValue,
	}
	if strings.HasPrefix(line, "DATA,") {
		strategies = []func(string) (float64, map[string]float64, bool){
			parseStructured,
		}
	}

	for _, parse := range strategies {
		value, aux, ok := parse(line)
		if !ok {
			continue
		}
		return &domain.Sample{
			Seq:       d.seq.Add(1),
			Timestamp: d.now(),
			Value:     value,
			Aux:       aux,
		}, nil
	}

	d.malformed.Add(1)
	return nil, ErrUnrecognizedFormat
}

// TotalLines reports every line handed to Decode, including rejected ones.
func (d *Decoder) TotalLines() uint64 { return d.total.Load() }

// MalformedLines reports lines that matched no accepted shape.
func (d *Decoder) MalformedLines() uint64 { return d.malformed.Load() }

// parseStructured handles the firmware CSV frame:
// "DATA,timestamp,ecg,resp,hr,status". The ECG value sits at index 2;
// respiration and the device's own heart-rate estimate are kept as
// auxiliary values when present.
func parseStructured(line string) (float64, map[string]float64, bool) {
	if !strings.HasPrefix(line, "DATA,") {
		return 0, nil, false
	}
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return 0, nil, false
	}
	ecg, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return 0, nil, false
	}

	var aux map[string]float64
	set := func(key, raw string) {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return
		}
		if aux == nil {
			aux = make(map[string]float64, 2)
		}
		aux[key] = v
	}
	set("resp", parts[3])
	if len(parts) > 4 {
		set("device_hr", parts[4])
	}
	return ecg, aux, true
}

// parseBareNumeric handles a single signed integer or decimal per line.
func parseBareNumeric(line string) (float64, map[string]float64, bool) {
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, nil, false
	}
	return v, nil, true
}

// parseMultiValue handles 2..maxMultiTokens numeric tokens separated by
// whitespace or commas; the first numeric token is the primary channel.
func parseMultiValue(line string) (float64, map[string]float64, bool) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) < 2 || len(fields) > maxMultiTokens {
		return 0, nil, false
	}
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			return v, nil, true
		}
	}
	return 0, nil, false
}
