package domain

import "time"

// Sample is the canonical unit of acquisition data: one decoded ECG value
// derived from one raw line of the device stream.
type Sample struct {
	Seq       uint64             `json:"seq"`
	Timestamp time.Time          `json:"ts"`
	Value     float64            `json:"value"`
	Channel   int                `json:"channel,omitempty"`
	Aux       map[string]float64 `json:"aux,omitempty"`
}

// CloneAux returns a copy of the auxiliary value map so snapshots never share
// mutable state with the decoder.
func (s Sample) CloneAux() map[string]float64 {
	if len(s.Aux) == 0 {
		return nil
	}
	dst := make(map[string]float64, len(s.Aux))
	for k, v := range s.Aux {
		dst[k] = v
	}
	return dst
}
