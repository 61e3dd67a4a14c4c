// Package analysis derives physiological metrics from a window of buffered
// samples. Estimation is a pure function of its input: the same window always
// produces the same snapshot.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/domain"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// SignalQuality grades the analysis window.
type SignalQuality string

const (
	QualityGood  SignalQuality = "good"
	QualityNoisy SignalQuality = "noisy"
	QualityFlat  SignalQuality = "flat"
)

// Plausible heart-rate range used to derive the minimum peak-to-peak
// distance, so a single beat is never double counted.
const (
	minPlausibleBPM = 30.0
	maxPlausibleBPM = 220.0
)

// flatVarianceThreshold marks a window with effectively no signal.
const flatVarianceThreshold = 1e-3

// Snapshot is the derived view of one analysis window. HeartRateBPM is zero
// and HasHeartRate false when fewer than two peaks were found.
type Snapshot struct {
	HeartRateBPM   float64
	HasHeartRate   bool
	RRIntervalsMS  []float64
	Quality        SignalQuality
	PeakCount      int
	SampleCount    int
	WindowDuration time.Duration
	Summary        ports.WindowSummary
}

// Estimate computes heart rate, RR intervals, and signal quality for the
// given window. Samples must be ordered by sequence index ascending.
func Estimate(samples []domain.Sample) Snapshot {
	snap := Snapshot{Quality: QualityFlat, SampleCount: len(samples)}
	if len(samples) == 0 {
		return snap
	}

	duration := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	snap.WindowDuration = duration

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	mean, std := meanStdDev(values)
	snap.Summary = summarize(values, mean, std, duration)

	if std*std < flatVarianceThreshold {
		snap.Quality = QualityFlat
		return snap
	}
	snap.Quality = QualityGood

	rate := sampleRate(samples, duration)
	peaks, candidates := findPeaks(values, mean, std, minPeakDistance(rate))
	snap.PeakCount = len(peaks)
	snap.Summary.PeakCount = len(peaks)

	if tooManyPeaks(candidates, duration) {
		snap.Quality = QualityNoisy
	}

	if len(peaks) < 2 {
		return snap
	}

	rr := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		dt := samples[peaks[i]].Timestamp.Sub(samples[peaks[i-1]].Timestamp)
		rr = append(rr, float64(dt)/float64(time.Millisecond))
	}
	snap.RRIntervalsMS = rr

	med := median(rr)
	if med > 0 {
		snap.HeartRateBPM = 60000.0 / med
		snap.HasHeartRate = true
		snap.Summary.HeartRateBPM = snap.HeartRateBPM
	}

	snap.Summary.MeanRRMillis, snap.Summary.SDNNMillis = meanStdDev(rr)
	snap.Summary.RMSSDMillis = rmssd(rr)
	return snap
}

func summarize(values []float64, mean, std float64, duration time.Duration) ports.WindowSummary {
	min, max := values[0], values[0]
	var sumSq float64
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sumSq += v * v
	}
	return ports.WindowSummary{
		Mean:         mean,
		StdDev:       std,
		Min:          min,
		Max:          max,
		PeakToPeak:   max - min,
		RMS:          math.Sqrt(sumSq / float64(len(values))),
		SampleCount:  len(values),
		DurationSecs: duration.Seconds(),
	}
}

// sampleRate derives Hz from timestamps; falls back to a nominal 250 Hz when
// the window is too short to tell.
func sampleRate(samples []domain.Sample, duration time.Duration) float64 {
	if len(samples) < 2 || duration <= 0 {
		return 250.0
	}
	return float64(len(samples)-1) / duration.Seconds()
}

// minPeakDistance converts the fastest plausible heart rate into a minimum
// gap between detected peaks, in samples.
func minPeakDistance(rate float64) int {
	d := int(rate * 60.0 / maxPlausibleBPM)
	if d < 1 {
		d = 1
	}
	return d
}

// findPeaks returns indices of local maxima rising above mean + 0.5*std,
// honoring the minimum distance between accepted peaks. candidates counts
// maxima before distance suppression and feeds the noise heuristic.
func findPeaks(values []float64, mean, std float64, minDist int) (peaks []int, candidates int) {
	if len(values) < 3 {
		return nil, 0
	}
	threshold := mean + 0.5*std

	for i := 1; i < len(values)-1; i++ {
		if values[i] <= values[i-1] || values[i] <= values[i+1] {
			continue
		}
		if values[i] <= threshold {
			continue
		}
		candidates++
		if len(peaks) > 0 && i-peaks[len(peaks)-1] < minDist {
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks, candidates
}

// tooManyPeaks flags windows whose candidate maxima count far exceeds the
// number of beats physiologically possible in the window.
func tooManyPeaks(candidates int, duration time.Duration) bool {
	if duration <= 0 {
		return false
	}
	maxBeats := duration.Seconds() * maxPlausibleBPM / 60.0
	return float64(candidates) > 2*maxBeats
}

func meanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var varSum float64
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	std = math.Sqrt(varSum / float64(len(values)))
	return mean, std
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// rmssd is the root mean square of successive RR differences, the standard
// short-window variability measure.
func rmssd(rr []float64) float64 {
	if len(rr) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(rr)-1))
}
