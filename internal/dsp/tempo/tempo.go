// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package tempo estimates BPM, confidence, beat strength, and danceability
// from PCM audio via spectral-flux onset detection and autocorrelation
// (spec §4.6, C6). Built on internal/dsp's stdlib FFT.
package tempo

import (
	"math"

	"github.com/resonance-audio/resonance/internal/dsp"
)

const (
	windowSize = 2048
	hopSize    = 512
	minBPM     = 60.0
	maxBPM     = 200.0
)

// Estimate is the full result of tempo analysis.
type Estimate struct {
	BPM          float64
	Confidence   float64
	BeatStrength float64
	Regularity   float64
	Danceability float64
}

// Analyze analyzes mono samples at sampleRate and returns BPM,
// confidence, beat strength, regularity, and danceability.
func Analyze(samples []float64, sampleRate int) Estimate {
	onset := onsetSignal(samples)
	if len(onset) < 3 {
		return Estimate{}
	}

	bpm, confidence := estimateBPM(onset, sampleRate)
	beatStrength := beatStrengthOf(onset)
	regularity := regularityOf(onset, sampleRate, bpm)
	preference := 1 - math.Min(math.Abs(bpm-120)/80, 1)*0.3

	danceability := 0.4*regularity + 0.4*beatStrength + 0.2*preference
	danceability = clamp01(danceability)

	return Estimate{
		BPM:          bpm,
		Confidence:   confidence,
		BeatStrength: beatStrength,
		Regularity:   regularity,
		Danceability: danceability,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// onsetSignal computes half-wave-rectified spectral flux per frame,
// smoothed by a length-5 moving average.
func onsetSignal(samples []float64) []float64 {
	window := dsp.HannWindow(windowSize)
	frames := dsp.Frames(samples, windowSize, hopSize, window)
	if len(frames) < 2 {
		return nil
	}

	spectra := make([][]float64, len(frames))
	for i, f := range frames {
		spectra[i] = dsp.Magnitude(f)
	}

	raw := make([]float64, len(spectra))
	for t := 1; t < len(spectra); t++ {
		sum := 0.0
		for k := range spectra[t] {
			diff := spectra[t][k] - spectra[t-1][k]
			if diff > 0 {
				sum += diff
			}
		}
		raw[t] = sum
	}

	return movingAverage(raw, 5)
}

func movingAverage(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	half := window / 2
	for i := range x {
		sum, n := 0.0, 0
		for j := i - half; j <= i+half; j++ {
			if j >= 0 && j < len(x) {
				sum += x[j]
				n++
			}
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// estimateBPM autocorrelates the onset signal over lags corresponding to
// BPM in [60, 200] and returns the argmax BPM plus a confidence score.
func estimateBPM(onset []float64, sampleRate int) (bpm, confidence float64) {
	onsetRate := float64(sampleRate) / float64(hopSize)

	lagFor := func(b float64) int {
		return int(math.Round(60 * onsetRate / b))
	}
	minLag := lagFor(maxBPM)
	maxLag := lagFor(minBPM)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if maxLag <= minLag {
		return minBPM, 0
	}

	corr := make([]float64, maxLag-minLag+1)
	for lag := minLag; lag <= maxLag; lag++ {
		sum := 0.0
		for i := 0; i+lag < len(onset); i++ {
			sum += onset[i] * onset[i+lag]
		}
		corr[lag-minLag] = sum
	}

	bestIdx, bestVal := 0, corr[0]
	sum := 0.0
	for i, v := range corr {
		sum += v
		if v > bestVal {
			bestVal, bestIdx = v, i
		}
	}
	mean := sum / float64(len(corr))

	bestLag := bestIdx + minLag
	bpm = 60 * onsetRate / float64(bestLag)
	bpm = math.Max(minBPM, math.Min(maxBPM, bpm))

	if mean == 0 {
		confidence = 0
	} else {
		confidence = clamp01(bestVal/mean - 1)
	}
	return bpm, confidence
}

// beatStrengthOf computes ((max-min)/mean)/10, clamped to [0,1].
func beatStrengthOf(onset []float64) float64 {
	if len(onset) == 0 {
		return 0
	}
	maxV, minV, sum := onset[0], onset[0], 0.0
	for _, v := range onset {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
		sum += v
	}
	mean := sum / float64(len(onset))
	if mean == 0 {
		return 0
	}
	return clamp01(((maxV - minV) / mean) / 10)
}

// regularityOf measures how closely onset peaks land on integer multiples
// of the expected inter-beat interval.
func regularityOf(onset []float64, sampleRate int, bpm float64) float64 {
	if len(onset) == 0 || bpm <= 0 {
		return 0
	}
	mean, stddev := meanStddev(onset)
	threshold := mean + 0.5*stddev

	var peakIdx []int
	for i := 1; i < len(onset)-1; i++ {
		if onset[i] > threshold && onset[i] > onset[i-1] && onset[i] > onset[i+1] {
			peakIdx = append(peakIdx, i)
		}
	}
	if len(peakIdx) < 2 {
		return 0
	}

	onsetRate := float64(sampleRate) / float64(hopSize)
	expectedInterval := 60 * onsetRate / bpm

	var totalDeviation float64
	count := 0
	for i := 1; i < len(peakIdx); i++ {
		interval := float64(peakIdx[i] - peakIdx[i-1])
		multiple := math.Round(interval / expectedInterval)
		if multiple < 1 {
			multiple = 1
		}
		expected := multiple * expectedInterval
		deviation := math.Abs(interval-expected) / expectedInterval
		totalDeviation += deviation
		count++
	}
	if count == 0 {
		return 0
	}
	avgDeviation := totalDeviation / float64(count)
	return 1 - math.Min(avgDeviation, 1)
}

func meanStddev(x []float64) (mean, stddev float64) {
	if len(x) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	mean = sum / float64(len(x))

	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(x))
	return mean, math.Sqrt(variance)
}
