// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package chroma computes a 12-bin chromagram from PCM audio and estimates
// its musical key via Krumhansl-Schmuckler profile correlation (spec §4.5,
// C5). Built on internal/dsp's stdlib FFT since no DSP library appears
// anywhere in the retrieved corpus.
package chroma

import (
	"math"

	"github.com/resonance-audio/resonance/internal/dsp"
)

const (
	windowSize = 4096
	hopSize    = 2048
	minFreqHz  = 27.5
	maxFreqHz  = 4186.0
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
var minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}

// Chromagram is a 12-element, L1-normalized vector of per-pitch-class
// energy, octave-invariant.
type Chromagram [12]float64

// Compute builds the chromagram for mono samples at the given sample
// rate, per spec §4.5 steps 1-3: STFT (window 4096, hop 2048, Hann),
// magnitude-squared accumulation into pitch-class bins over the audible
// musical range, frame-averaging, then L1 normalization. Silent input
// yields all zeros.
func Compute(samples []float64, sampleRate int) Chromagram {
	window := dsp.HannWindow(windowSize)
	frames := dsp.Frames(samples, windowSize, hopSize, window)

	var acc Chromagram
	if len(frames) == 0 {
		return acc
	}

	fftSize := dsp.NextPowerOfTwo(windowSize)
	for _, frame := range frames {
		mag := dsp.Magnitude(frame)
		for bin, m := range mag {
			freq := float64(bin) * float64(sampleRate) / float64(fftSize)
			if freq < minFreqHz || freq > maxFreqHz {
				continue
			}
			pitchClass := pitchClassOf(freq)
			acc[pitchClass] += m * m
		}
	}

	for i := range acc {
		acc[i] /= float64(len(frames))
	}

	sum := 0.0
	for _, v := range acc {
		sum += v
	}
	if sum == 0 {
		return acc
	}
	for i := range acc {
		acc[i] /= sum
	}
	return acc
}

func pitchClassOf(freqHz float64) int {
	midi := 69 + 12*math.Log2(freqHz/440.0)
	pc := int(math.Round(midi)) % 12
	if pc < 0 {
		pc += 12
	}
	return pc
}

// KeyEstimate is the result of Krumhansl-Schmuckler profile correlation.
type KeyEstimate struct {
	Key        string
	Mode       string // "major" or "minor"
	Confidence float64
	Camelot    string
}

// EstimateKey correlates c against all 12 rotations of both the major and
// minor Krumhansl-Schmuckler profiles and returns the best match. Ties
// prefer the first-seen argmax: major before minor, lower rotation first.
func EstimateKey(c Chromagram) KeyEstimate {
	bestCorr := math.Inf(-1)
	bestPitch := 0
	bestMode := "major"

	for rotation := 0; rotation < 12; rotation++ {
		if corr := pearsonCorrelate(c, rotate(majorProfile, rotation)); corr > bestCorr {
			bestCorr, bestPitch, bestMode = corr, rotation, "major"
		}
	}
	for rotation := 0; rotation < 12; rotation++ {
		if corr := pearsonCorrelate(c, rotate(minorProfile, rotation)); corr > bestCorr {
			bestCorr, bestPitch, bestMode = corr, rotation, "minor"
		}
	}

	confidence := (bestCorr + 1) / 2
	confidence = math.Max(0, math.Min(1, confidence))

	key := noteNames[bestPitch]
	return KeyEstimate{
		Key:        key,
		Mode:       bestMode,
		Confidence: confidence,
		Camelot:    camelot(key, bestMode),
	}
}

func rotate(profile [12]float64, n int) [12]float64 {
	var out [12]float64
	for i := range profile {
		out[(i+n)%12] = profile[i]
	}
	return out
}

func pearsonCorrelate(a Chromagram, b [12]float64) float64 {
	var meanA, meanB float64
	for i := 0; i < 12; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= 12
	meanB /= 12

	var num, denomA, denomB float64
	for i := 0; i < 12; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denomA += da * da
		denomB += db * db
	}
	denom := math.Sqrt(denomA * denomB)
	if denom == 0 {
		return 0
	}
	return num / denom
}

// camelotMajor maps major keys to their Camelot wheel position.
var camelotMajor = map[string]string{
	"C": "8B", "C#": "3B", "D": "10B", "D#": "5B", "E": "12B", "F": "7B",
	"F#": "2B", "G": "9B", "G#": "4B", "A": "11B", "A#": "6B", "B": "1B",
}

// camelotMinor maps minor keys to their Camelot wheel position.
var camelotMinor = map[string]string{
	"C": "5A", "C#": "12A", "D": "7A", "D#": "2A", "E": "9A", "F": "4A",
	"F#": "11A", "G": "6A", "G#": "1A", "A": "8A", "A#": "3A", "B": "10A",
}

func camelot(key, mode string) string {
	if mode == "minor" {
		return camelotMinor[key]
	}
	return camelotMajor[key]
}
